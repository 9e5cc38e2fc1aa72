package community

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroupChannel(t *testing.T) {
	var captured GroupChannelRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/match-groups", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GroupChannelResponse{
			ChannelID: "chan-42",
			Notified:  3,
		})
	}))
	defer srv.Close()

	cfg := DefaultClientConfig(srv.URL)
	cfg.APIToken = "test-token"
	client := NewClient(cfg)

	resp, err := client.CreateGroupChannel(context.Background(), GroupChannelRequest{
		GroupID:      "grp-1",
		MemberIDs:    []string{"doc-a", "doc-b", "doc-c"},
		AverageScore: 72,
	})
	require.NoError(t, err)

	assert.Equal(t, "chan-42", resp.ChannelID)
	assert.Equal(t, 3, resp.Notified)

	assert.Equal(t, "grp-1", captured.GroupID)
	assert.Len(t, captured.MemberIDs, 3)
	assert.Equal(t, 72, captured.AverageScore)
}

func TestCreateGroupChannel_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(DefaultClientConfig(srv.URL))

	_, err := client.CreateGroupChannel(context.Background(), GroupChannelRequest{GroupID: "grp-1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateGroupChannel_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(DefaultClientConfig(srv.URL))

	_, err := client.CreateGroupChannel(context.Background(), GroupChannelRequest{GroupID: "grp-1"})
	assert.ErrorIs(t, err, ErrAPIFailure)
	assert.Contains(t, err.Error(), "status 500")
}
