package fakeservice

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DBCDK/opencat-business-connector/pkg/connector"
)

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestCheckTemplate(t *testing.T) {
	svc := New()
	srv := svc.Start()
	defer srv.Close()

	url := srv.URL + connector.OpCheckTemplate.Path()
	status, body := post(t, url, `{"name":"netlydbog","groupId":"710100","libraryType":"fbs"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "true", body)

	_, body = post(t, url, `{"name":"dbc","groupId":"710100","libraryType":"fbs"}`)
	assert.Equal(t, "false", body)

	_, body = post(t, url, `{"name":"julemand","groupId":"710100","libraryType":"fbs"}`)
	assert.Equal(t, "false", body)
}

func TestFaultsAndRecording(t *testing.T) {
	svc := New()
	srv := svc.Start()
	defer srv.Close()

	url := srv.URL + connector.OpCheckTemplateBuild.Path()
	svc.Fail(connector.OpCheckTemplateBuild, http.StatusInternalServerError, 1, "NullPointerException")

	status, body := post(t, url, `{"name":"allowall"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "NullPointerException", body)

	status, body = post(t, url, `{"name":"allowall"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"result":true}`, body)

	reqs := svc.Requests(connector.OpCheckTemplateBuild)
	require.Len(t, reqs, 2)
	assert.JSONEq(t, `{"name":"allowall"}`, string(reqs[0]))
	assert.Equal(t, 0, svc.Hits(connector.OpSortRecord))

	svc.Reset()
	assert.Equal(t, 0, svc.Hits(connector.OpCheckTemplateBuild))
}

func TestBadRequests(t *testing.T) {
	svc := New()
	srv := svc.Start()
	defer srv.Close()

	status, body := post(t, srv.URL+connector.OpValidateRecord.Path(), `{"templateName":"julemand","record":"<record/>"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Skabelonen 'julemand' findes ikke", body)

	status, body = post(t, srv.URL+connector.OpPreprocess.Path(), `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Feltet 'record' mangler", body)

	status, _ = post(t, srv.URL+connector.OpPreprocess.Path(), `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUnknownPath(t *testing.T) {
	srv := New().Start()
	defer srv.Close()

	status, _ := post(t, srv.URL+"/api/v1/unknown", `{}`)
	assert.Equal(t, http.StatusNotFound, status)
}
