package backup

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/mizan/internal/database"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3NotFound{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(string(data))),
	}, nil
}

type s3NotFound struct{}

func (e *s3NotFound) Error() string { return "NoSuchKey" }

func TestManagerStateLifecycle(t *testing.T) {
	// Without S3 config: disabled.
	m := NewManager(Config{}, nil, slog.Default())
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}
	if m.Enabled() {
		t.Error("unconfigured manager reports enabled")
	}

	// Fully configured: idle.
	m2 := NewManager(Config{
		S3:         S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
		Passphrase: "pass",
	}, nil, slog.Default())
	if m2.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m2.Status().State, StateIdle)
	}

	// Missing passphrase keeps backups off even with S3 credentials.
	m3 := NewManager(Config{
		S3: S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
	}, nil, slog.Default())
	if m3.Status().State != StateDisabled {
		t.Errorf("state without passphrase = %q, want %q", m3.Status().State, StateDisabled)
	}
}

func TestRunNowUploadsEncryptedSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mizan.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock := newMockS3()
	m := NewManager(Config{
		S3:         S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
		DBPath:     dbPath,
		Passphrase: "pass",
	}, db, slog.Default())
	m.client = mock

	key, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}

	mock.mu.Lock()
	data := mock.objects[key]
	mock.mu.Unlock()
	if len(data) == 0 {
		t.Fatal("nothing uploaded")
	}

	// The blob decrypts back to a sqlite file.
	plaintext, err := Decrypt(data, "pass")
	if err != nil {
		t.Fatalf("decrypt upload: %v", err)
	}
	if !strings.HasPrefix(string(plaintext), "SQLite format 3") {
		t.Error("decrypted upload is not a sqlite database")
	}

	if m.Status().State != StateIdle || m.Status().LastBackup == nil {
		t.Errorf("status after backup = %+v", m.Status())
	}
}

func TestRunNowUnconfigured(t *testing.T) {
	m := NewManager(Config{}, nil, slog.Default())
	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected error for unconfigured manager")
	}
}

func TestManagerStopSafety(t *testing.T) {
	m := NewManager(Config{
		S3:         S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
		Passphrase: "pass",
	}, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	m.Stop()

	// Double stop should not panic.
	m.Stop()
}

func TestManagerDisabledNoStart(t *testing.T) {
	m := NewManager(Config{}, nil, slog.Default())

	m.Start(context.Background())
	m.Stop()
}
