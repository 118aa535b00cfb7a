//go:build acceptance

package acceptance

import (
	"encoding/json"
	"net/http"
)

func (s *Suite) TestHealthEndpoint() {
	resp, err := http.Get(s.BaseURL + "/health")
	s.Require().NoError(err, "Failed to make request")
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode, "Expected status 200")
}

func (s *Suite) TestJWKSEndpoint() {
	resp, err := http.Get(s.BaseURL + "/.well-known/jwks.json")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Require().Len(body.Keys, 1)
	s.Equal("RSA", body.Keys[0]["kty"])
	s.Equal("RS256", body.Keys[0]["alg"])
}

func (s *Suite) TestMetricsEndpoint() {
	resp, err := http.Get(s.BaseURL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
}
