package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/filestore"
	"github.com/agency-portal/chat-pipeline/internal/ingest"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/store"
	"github.com/agency-portal/chat-pipeline/internal/streaming/streamingtest"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRooms struct{ members map[string]bool }

func (f *fakeRooms) Join(context.Context, string, string) error  { return nil }
func (f *fakeRooms) Leave(context.Context, string, string) error { return nil }
func (f *fakeRooms) MembersOnline(context.Context, string, ports.PresenceRegistry) ([]string, error) {
	return nil, nil
}
func (f *fakeRooms) Members(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeRooms) CanPost(_ context.Context, identity, _ string) (bool, error) {
	return f.members[identity], nil
}
func (f *fakeRooms) CanAdminister(context.Context, string, string) (bool, error)     { return false, nil }
func (f *fakeRooms) AddParticipant(context.Context, string, string, string) error    { return nil }
func (f *fakeRooms) RemoveParticipant(context.Context, string, string, string) error { return nil }

type fakeVerifier struct{ identity string }

func (f fakeVerifier) Verify(token string) (string, error) {
	if token != "good-token" {
		return "", fmt.Errorf("bad token")
	}
	return f.identity, nil
}

func newTestAPI(t *testing.T) (*API, *store.SQLiteStore) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=journal_mode(WAL)", t.Name())
	st, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	streams := streamingtest.New()
	rooms := &fakeRooms{members: map[string]bool{"alice": true}}
	path := ingest.New(streams, st, rooms, nil)

	files, err := filestore.NewDisk(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	return New(path, st, streams, files, nil, nil, 1<<20), st
}

func authedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer good-token")
	return req
}

func TestPostMessage_ValidRequestReturnsSent(t *testing.T) {
	a, st := newTestAPI(t)
	require.NoError(t, st.UpsertConversation(context.Background(), domain.Conversation{
		ID: "c1", Type: domain.ConversationGroup, Participants: []domain.Participant{{UserID: "alice"}}, LastActivity: time.Now(),
	}))

	router := NewRouter(a, fakeVerifier{identity: "alice"})
	req := authedRequest(http.MethodPost, "/messages", []byte(`{"conversationId":"c1","content":"hi","type":"TEXT"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestPostMessage_MissingTokenIsUnauthorized(t *testing.T) {
	a, _ := newTestAPI(t)
	router := NewRouter(a, fakeVerifier{identity: "alice"})

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListConversations_ReturnsOnlyCallerMemberships(t *testing.T) {
	a, st := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertConversation(ctx, domain.Conversation{
		ID: "c1", Type: domain.ConversationPrivate, Participants: []domain.Participant{{UserID: "alice"}, {UserID: "bob"}}, LastActivity: time.Now(),
	}))
	require.NoError(t, st.UpsertConversation(ctx, domain.Conversation{
		ID: "c2", Type: domain.ConversationPrivate, Participants: []domain.Participant{{UserID: "bob"}, {UserID: "carol"}}, LastActivity: time.Now(),
	}))

	router := NewRouter(a, fakeVerifier{identity: "alice"})
	req := authedRequest(http.MethodGet, "/conversations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"c1"`)
	assert.NotContains(t, w.Body.String(), `"c2"`)
}

func TestPostFile_AndDownloadRoundTrips(t *testing.T) {
	a, _ := newTestAPI(t)
	router := NewRouter(a, fakeVerifier{identity: "alice"})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "note.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("attachment contents"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &body)
	req.Header.Set("Authorization", "Bearer good-token")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created fileDTO
	require.NoError(t, jsonx.Unmarshal(w.Body.Bytes(), &created))

	dl := authedRequest(http.MethodGet, "/files/"+created.ID+"/download", nil)
	dw := httptest.NewRecorder()
	router.ServeHTTP(dw, dl)

	assert.Equal(t, http.StatusOK, dw.Code)
	assert.Equal(t, "attachment contents", dw.Body.String())
}

func TestHealth_ReportsOKWhenDependenciesReachable(t *testing.T) {
	a, _ := newTestAPI(t)
	router := NewRouter(a, fakeVerifier{identity: "alice"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}
