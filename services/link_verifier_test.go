package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-collector/models"
	"github.com/fenilmodi00/ipo-collector/shared"
	"github.com/stretchr/testify/assert"
)

func TestVerifyNewLinksCountsUnresolvableLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "gone") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	verifier := NewLinkVerifier(10)
	verifier.rateLimiter = shared.NewHTTPRequestRateLimiter(time.Millisecond)

	failures := verifier.VerifyNewLinks([]models.IPORecord{
		{Company: "Alpha Ltd", CompanyLink: server.URL + "/company/alpha/"},
		{Company: "Gone Ltd", CompanyLink: server.URL + "/company/gone/"},
		{Company: "Beta Ltd", CompanyLink: server.URL + "/company/beta/"},
	})

	assert.Equal(t, 1, failures)
}

func TestVerifyNewLinksHonorsSampleLimit(t *testing.T) {
	visits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/company/") {
			visits++
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	verifier := NewLinkVerifier(1)
	verifier.rateLimiter = shared.NewHTTPRequestRateLimiter(time.Millisecond)

	verifier.VerifyNewLinks([]models.IPORecord{
		{Company: "Alpha Ltd", CompanyLink: server.URL + "/company/alpha/"},
		{Company: "Beta Ltd", CompanyLink: server.URL + "/company/beta/"},
	})

	assert.Equal(t, 1, visits)
}

func TestVerifyNewLinksNoRecords(t *testing.T) {
	verifier := NewLinkVerifier(5)
	assert.Equal(t, 0, verifier.VerifyNewLinks(nil))
}
