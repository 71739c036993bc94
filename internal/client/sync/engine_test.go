package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dzaharov/vaultsync/internal/client/api"
	"github.com/dzaharov/vaultsync/internal/client/vault"
	"github.com/dzaharov/vaultsync/internal/common"
)

var testSyncKey = bytes.Repeat([]byte{7}, 32)

// vaultServer is a scripted stand-in for the server's vault endpoints. Each
// submission is answered with the next status in the script; the latest
// blob and revision number back the GET endpoint.
type vaultServer struct {
	t          *testing.T
	script     []int
	submits    int
	latestBlob []byte
	latestNum  int64
	lastBase   int64
}

func (s *vaultServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/vault", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"blob":           s.latestBlob,
			"revisionNumber": s.latestNum,
			"createdAt":      time.Now(),
			"updatedAt":      time.Now(),
		})
	})
	mux.HandleFunc("POST /api/v1/vault", func(w http.ResponseWriter, r *http.Request) {
		var sub api.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			s.t.Errorf("decoding submission: %v", err)
		}
		s.lastBase = sub.BaseRevisionNumber
		status := api.SubmitAccepted
		if s.submits < len(s.script) {
			status = s.script[s.submits]
		}
		s.submits++

		resp := map[string]any{"status": status}
		if status == api.SubmitAccepted {
			s.latestBlob = sub.Blob
			s.latestNum = sub.BaseRevisionNumber + 1
			resp["newRevisionNumber"] = s.latestNum
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestEngine(t *testing.T, s *vaultServer) (*Engine, *httptest.Server) {
	t.Helper()
	s.t = t
	ts := httptest.NewServer(s.handler())
	t.Cleanup(ts.Close)
	client := api.New(ts.URL)
	client.SetTokens("access", "refresh")
	return NewEngine(client, testSyncKey, "1.0.0"), ts
}

func vaultWith(t *testing.T, at time.Time, records map[string]map[string]string) *vault.Vault {
	t.Helper()
	v := vault.New()
	for id, fields := range records {
		for name, value := range fields {
			v.SetField(id, name, value, at)
		}
	}
	return v
}

func encrypt(t *testing.T, v *vault.Vault) []byte {
	t.Helper()
	blob, err := v.Encrypt(testSyncKey)
	if err != nil {
		t.Fatalf("encrypting vault: %v", err)
	}
	return blob
}

func TestSyncAccepted(t *testing.T) {
	server := &vaultServer{}
	engine, _ := newTestEngine(t, server)

	local := vaultWith(t, time.Now(), map[string]map[string]string{
		"rec1": {vault.FieldUsername: "alice"},
	})
	result, err := engine.Sync(context.Background(), local, vault.New(), 3)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.RevisionNumber != 4 {
		t.Errorf("revision = %d, want 4", result.RevisionNumber)
	}
	if result.Merged {
		t.Error("a clean submit is not a merge")
	}
	if engine.State() != StateSynced {
		t.Errorf("state = %v, want synced", engine.State())
	}
	if server.lastBase != 3 {
		t.Errorf("submitted base = %d, want 3", server.lastBase)
	}
}

func TestSyncConflictMergesAndResubmits(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ancestor := vaultWith(t, base, map[string]map[string]string{
		"rec1": {vault.FieldUsername: "alice", vault.FieldPassword: "old"},
	})

	local := ancestor.Clone()
	local.SetField("rec1", vault.FieldUsername, "alice@new", base.Add(time.Minute))

	remote := ancestor.Clone()
	remote.SetField("rec1", vault.FieldPassword, "rotated", base.Add(2*time.Minute))

	server := &vaultServer{
		script:     []int{api.SubmitMergeRequired, api.SubmitAccepted},
		latestNum:  6,
		latestBlob: nil,
	}
	engine, _ := newTestEngine(t, server)
	server.latestBlob = encrypt(t, remote)

	result, err := engine.Sync(context.Background(), local, ancestor, 5)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !result.Merged {
		t.Error("expected a merged result")
	}
	if result.RevisionNumber != 7 {
		t.Errorf("revision = %d, want 7", result.RevisionNumber)
	}
	if server.lastBase != 6 {
		t.Errorf("resubmission base = %d, want the fetched revision 6", server.lastBase)
	}

	rec := result.Vault.Records["rec1"]
	if rec.Fields[vault.FieldUsername].Value != "alice@new" {
		t.Error("local edit lost in merge")
	}
	if rec.Fields[vault.FieldPassword].Value != "rotated" {
		t.Error("remote edit lost in merge")
	}
}

func TestSyncConflictWithoutAncestor(t *testing.T) {
	server := &vaultServer{script: []int{api.SubmitMergeRequired}}
	engine, _ := newTestEngine(t, server)

	_, err := engine.Sync(context.Background(), vault.New(), nil, 0)
	if !errors.Is(err, ErrFullResyncRequired) {
		t.Fatalf("want ErrFullResyncRequired, got %v", err)
	}
	if engine.State() != StateFailed {
		t.Errorf("state = %v, want failed", engine.State())
	}
}

func TestSyncOutdatedClient(t *testing.T) {
	server := &vaultServer{script: []int{api.SubmitOutdated}}
	engine, _ := newTestEngine(t, server)

	_, err := engine.Sync(context.Background(), vault.New(), vault.New(), 0)
	if !errors.Is(err, common.ErrClientOutdated) {
		t.Fatalf("want ErrClientOutdated, got %v", err)
	}
}

func TestSyncGivesUpAfterRepeatedConflicts(t *testing.T) {
	script := make([]int, maxMergeRounds+2)
	for i := range script {
		script[i] = api.SubmitMergeRequired
	}
	server := &vaultServer{script: script}
	engine, _ := newTestEngine(t, server)
	server.latestBlob = encrypt(t, vault.New())

	_, err := engine.Sync(context.Background(), vault.New(), vault.New(), 0)
	if !errors.Is(err, ErrTooManyConflicts) {
		t.Fatalf("want ErrTooManyConflicts, got %v", err)
	}
}

func TestSyncHonorsCancellation(t *testing.T) {
	server := &vaultServer{}
	engine, _ := newTestEngine(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Sync(ctx, vault.New(), vault.New(), 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if server.submits != 0 {
		t.Error("no submission should go out after cancellation")
	}
}

func TestPullDecryptsLatest(t *testing.T) {
	remote := vaultWith(t, time.Now(), map[string]map[string]string{
		"rec1": {vault.FieldNotes: "hello"},
	})
	server := &vaultServer{latestNum: 9}
	engine, _ := newTestEngine(t, server)
	server.latestBlob = encrypt(t, remote)

	result, err := engine.Pull(context.Background())
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if result.RevisionNumber != 9 {
		t.Errorf("revision = %d, want 9", result.RevisionNumber)
	}
	if result.Vault.Records["rec1"].Fields[vault.FieldNotes].Value != "hello" {
		t.Error("pulled vault content wrong")
	}
}

func TestPullEmptyBlobIsEmptyVault(t *testing.T) {
	server := &vaultServer{latestNum: 0, latestBlob: nil}
	engine, _ := newTestEngine(t, server)

	result, err := engine.Pull(context.Background())
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if result.Vault.CredentialCount() != 0 {
		t.Error("revision 0 should decode to an empty vault")
	}
}

func TestChangePasswordConflict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/vault/change-password", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": api.SubmitMergeRequired})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := api.New(ts.URL)
	client.SetTokens("access", "refresh")
	engine := NewEngine(client, testSyncKey, "1.0.0")

	_, err := engine.ChangePassword(context.Background(), vault.New(), 4, CredentialRotation{
		Username: "alice",
		NewSalt:  []byte("ns"),
		NewKey:   testSyncKey,
	})
	if !errors.Is(err, ErrRotationConflict) {
		t.Fatalf("want ErrRotationConflict, got %v", err)
	}
}

func TestChangePasswordAccepted(t *testing.T) {
	var got api.PasswordChange
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/vault/change-password", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding change: %v", err)
		}
		n := int64(5)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": api.SubmitAccepted, "newRevisionNumber": n})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := api.New(ts.URL)
	client.SetTokens("access", "refresh")
	engine := NewEngine(client, testSyncKey, "1.0.0")

	newKey := bytes.Repeat([]byte{9}, 32)
	v := vaultWith(t, time.Now(), map[string]map[string]string{
		"rec1": {vault.FieldUsername: "alice"},
	})
	result, err := engine.ChangePassword(context.Background(), v, 4, CredentialRotation{
		Username:    "alice",
		NewSalt:     []byte("ns"),
		NewVerifier: []byte("nv"),
		NewKey:      newKey,
	})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if result.RevisionNumber != 5 {
		t.Errorf("revision = %d, want 5", result.RevisionNumber)
	}
	if got.BaseRevisionNumber != 4 || !bytes.Equal(got.NewSalt, []byte("ns")) {
		t.Error("rotation material not forwarded")
	}

	// The submitted blob must open under the new key, not the old one.
	if _, err := vault.Decrypt(got.Blob, testSyncKey); err == nil {
		t.Error("blob still readable with the old key")
	}
	reopened, err := vault.Decrypt(got.Blob, newKey)
	if err != nil {
		t.Fatalf("decrypting with new key: %v", err)
	}
	if reopened.Records["rec1"].Fields[vault.FieldUsername].Value != "alice" {
		t.Error("re-encrypted vault content wrong")
	}
}
