package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanzahq/stanza/internal/config"
	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/models"
)

func setupCLI(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()

	originalCfg := appConfig
	cfg := config.DefaultConfig()
	cfg.Global.DataDir = filepath.Join(tmpDir, "data")
	cfg.Global.ConfigDir = filepath.Join(tmpDir, "config")
	appConfig = cfg

	jsonOutput, jsonlOutput, quiet, noColor = false, false, false, true
	t.Cleanup(func() {
		appConfig = originalCfg
		jsonOutput, jsonlOutput, quiet, noColor = false, false, false, false
	})
	return cfg
}

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	defer cmd.SetOut(nil)
	defer cmd.SetErr(nil)
	err := cmd.RunE(cmd, args)
	return buf.String(), err
}

func mustRun(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, err := runCmd(t, cmd, args...)
	if err != nil {
		t.Fatalf("%s %v: %v", cmd.CommandPath(), args, err)
	}
	return out
}

func addProfiles(t *testing.T, usernames ...string) {
	t.Helper()
	for _, name := range usernames {
		profileDisplayName = strings.ToUpper(name[:1]) + name[1:]
		mustRun(t, profileAddCmd, name+"-id", name)
	}
	profileDisplayName = ""
}

func unreadFrom(t *testing.T, out string) int {
	t.Helper()
	var decoded struct {
		Unread int `json:"unread"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return decoded.Unread
}

func TestChatCLIRoundTrip(t *testing.T) {
	cfg := setupCLI(t)
	addProfiles(t, "alice", "bob")

	cfg.Auth.UserID = "alice-id"
	out := mustRun(t, chatOpenCmd, "bob")
	if !strings.Contains(out, "Conversation") || !strings.Contains(out, "Bob") {
		t.Fatalf("unexpected open output: %q", out)
	}
	mustRun(t, chatSendCmd, "bob", "hello")
	mustRun(t, chatSendCmd, "bob", "are you there?")

	cfg.Auth.UserID = "bob-id"
	jsonOutput = true
	if got := unreadFrom(t, mustRun(t, chatUnreadCmd)); got != 2 {
		t.Fatalf("expected 2 unread for bob, got %d", got)
	}

	jsonOutput = false
	out = mustRun(t, chatHistoryCmd, "alice")
	hello := strings.Index(out, "hello")
	there := strings.Index(out, "are you there?")
	if hello < 0 || there < 0 || hello > there {
		t.Fatalf("expected messages in order, got %q", out)
	}

	jsonOutput = true
	if got := unreadFrom(t, mustRun(t, chatUnreadCmd)); got != 0 {
		t.Fatalf("expected history to mark messages read, got %d unread", got)
	}

	cfg.Auth.UserID = "alice-id"
	var summaries []*models.ConversationSummary
	if err := json.Unmarshal([]byte(mustRun(t, chatListCmd)), &summaries); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(summaries))
	}
	if summaries[0].Other.Username != "bob" {
		t.Fatalf("expected other participant bob, got %q", summaries[0].Other.Username)
	}
	if summaries[0].LastMessage == nil || summaries[0].LastMessage.Content != "are you there?" {
		t.Fatalf("unexpected last message: %+v", summaries[0].LastMessage)
	}
}

func TestChatReadUsesSavedConversation(t *testing.T) {
	cfg := setupCLI(t)
	addProfiles(t, "alice", "bob")

	cfg.Auth.UserID = "alice-id"
	mustRun(t, chatOpenCmd, "bob")
	mustRun(t, chatSendCmd, "bob", "ping")

	cfg.Auth.UserID = "bob-id"
	mustRun(t, chatOpenCmd, "alice")

	jsonOutput = true
	var result struct {
		Marked int `json:"marked"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, chatReadCmd)), &result); err != nil {
		t.Fatalf("decode read result: %v", err)
	}
	if result.Marked != 1 {
		t.Fatalf("expected 1 message marked, got %d", result.Marked)
	}
}

func TestChatSendRejectsNonParticipant(t *testing.T) {
	cfg := setupCLI(t)
	addProfiles(t, "alice", "bob", "carol")

	cfg.Auth.UserID = "alice-id"
	mustRun(t, chatOpenCmd, "bob")

	cfg.Auth.UserID = "carol-id"
	if _, err := runCmd(t, chatSendCmd, "bob", "intrude"); err == nil {
		t.Fatal("expected carol to have no conversation with bob")
	}
}

func TestNotifyCLI(t *testing.T) {
	cfg := setupCLI(t)
	addProfiles(t, "alice", "bob")
	poemAuthor = "alice"
	t.Cleanup(func() { poemAuthor = "" })
	mustRun(t, poemAddCmd, "poem-1", "Ode")

	cfg.Auth.UserID = "bob-id"
	notifyTo, notifyType, notifyPoem, notifyContent = "alice", "like", "poem-1", ""
	t.Cleanup(func() { notifyTo, notifyType, notifyPoem, notifyContent = "", "", "", "" })

	out := mustRun(t, notifyCreateCmd)
	if !strings.Contains(out, "Notified") {
		t.Fatalf("unexpected create output: %q", out)
	}

	notifyTo = "bob"
	out = mustRun(t, notifyCreateCmd)
	if !strings.Contains(out, "Skipped") {
		t.Fatalf("expected self-notification to be skipped, got %q", out)
	}

	cfg.Auth.UserID = "alice-id"
	jsonOutput = true
	if got := unreadFrom(t, mustRun(t, notifyCountCmd)); got != 1 {
		t.Fatalf("expected 1 unread notification, got %d", got)
	}

	var items []*models.Notification
	if err := json.Unmarshal([]byte(mustRun(t, notifyListCmd)), &items); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(items) != 1 || items[0].Type != models.NotificationLike {
		t.Fatalf("unexpected notifications: %+v", items)
	}

	mustRun(t, notifyReadCmd, shortID(items[0].ID))
	if got := unreadFrom(t, mustRun(t, notifyCountCmd)); got != 0 {
		t.Fatalf("expected 0 unread after read, got %d", got)
	}
}

func TestNotifyCreateRejectsUnknownType(t *testing.T) {
	cfg := setupCLI(t)
	addProfiles(t, "alice", "bob")

	cfg.Auth.UserID = "bob-id"
	notifyTo, notifyType = "alice", "poke"
	t.Cleanup(func() { notifyTo, notifyType = "", "" })

	_, err := runCmd(t, notifyCreateCmd)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUseSavesActingUser(t *testing.T) {
	cfg := setupCLI(t)
	addProfiles(t, "alice")

	out := mustRun(t, useCmd, "ali")
	if !strings.Contains(out, "Alice") {
		t.Fatalf("unexpected use output: %q", out)
	}

	saved, err := config.NewContextStore(cfg.ContextPath()).Load()
	if err != nil {
		t.Fatalf("load context: %v", err)
	}
	if saved.UserID != "alice-id" {
		t.Fatalf("expected saved user alice-id, got %q", saved.UserID)
	}

	user, err := requireCurrentUser(context.Background())
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user.ID != "alice-id" {
		t.Fatalf("expected alice-id, got %q", user.ID)
	}
}

func TestRequireCurrentUserWithoutSession(t *testing.T) {
	setupCLI(t)

	_, err := requireCurrentUser(context.Background())
	if err == nil || !strings.Contains(err.Error(), "stanza use") {
		t.Fatalf("expected guidance error, got %v", err)
	}
}

func TestJWTIdentityFromIssuedToken(t *testing.T) {
	cfg := setupCLI(t)
	addProfiles(t, "alice")
	cfg.Auth.JWTSecret = "test-secret"

	token := strings.TrimSpace(mustRun(t, authTokenCmd, "alice"))
	if token == "" {
		t.Fatal("expected a token")
	}

	cfg.Auth.Mode = config.AuthModeJWT
	cfg.Auth.Token = token
	out := mustRun(t, authWhoamiCmd)
	if strings.TrimSpace(out) != "alice-id" {
		t.Fatalf("expected alice-id, got %q", out)
	}
}

func TestEventsPrune(t *testing.T) {
	setupCLI(t)

	database, err := openDatabase()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	repo := db.NewEventRepository(database)
	now := time.Now().UTC()
	for _, ts := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Minute)} {
		if err := repo.Append(context.Background(), &models.Event{
			Timestamp:  ts,
			Type:       models.EventTypeMessageInserted,
			EntityType: models.EntityTypeMessage,
			EntityID:   "msg",
		}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	database.Close()

	pruneOlder = 24 * time.Hour
	t.Cleanup(func() { pruneOlder = 0 })

	jsonOutput = true
	var result struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, eventsPruneCmd)), &result); err != nil {
		t.Fatalf("decode prune result: %v", err)
	}
	if result.Deleted != 1 {
		t.Fatalf("expected 1 pruned event, got %d", result.Deleted)
	}
}

func TestMigrateReportsSchemaVersion(t *testing.T) {
	setupCLI(t)
	jsonOutput = true

	var result struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, migrateCmd)), &result); err != nil {
		t.Fatalf("decode migrate result: %v", err)
	}
	if result.Version < 1 {
		t.Fatalf("expected a schema version, got %d", result.Version)
	}
}
