package service

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"genieacs-portal/internal/device/domain"
	"genieacs-portal/internal/gateway"
	"genieacs-portal/internal/genieacs"
	"genieacs-portal/internal/otp"
	"genieacs-portal/internal/security"
	"genieacs-portal/internal/settings"
)

type postedTask struct {
	DeviceID string
	Task     genieacs.Task
	Opts     genieacs.TaskOptions
}

// fakeDirectory is an in-memory device directory safe for concurrent use.
type fakeDirectory struct {
	mu       sync.Mutex
	devices  []domain.Record
	listErr  error
	failTask map[string]bool
	tasks    []postedTask
	added    []string
	deleted  []string
}

func (f *fakeDirectory) ListDevices(ctx context.Context) ([]domain.Record, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.devices, nil
}

func (f *fakeDirectory) QueryDeviceByID(ctx context.Context, id string) (domain.Record, error) {
	for _, d := range f.devices {
		if d.ID() == id {
			return d, nil
		}
	}
	return nil, genieacs.ErrDeviceNotFound
}

func (f *fakeDirectory) GetDevice(ctx context.Context, id string) (domain.Record, error) {
	return f.QueryDeviceByID(ctx, genieacsDecode(id))
}

func (f *fakeDirectory) FindByTag(ctx context.Context, tag string) (domain.Record, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	for _, d := range f.devices {
		if d.HasTag(tag) {
			return d, nil
		}
	}
	return nil, genieacs.ErrDeviceNotFound
}

func (f *fakeDirectory) PostTask(ctx context.Context, deviceID string, task genieacs.Task, opts genieacs.TaskOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTask[deviceID] {
		return errors.New("genieacs: upstream error: 500")
	}
	f.tasks = append(f.tasks, postedTask{DeviceID: deviceID, Task: task, Opts: opts})
	return nil
}

func (f *fakeDirectory) AddTag(ctx context.Context, deviceID, tag string) error {
	f.added = append(f.added, tag)
	return nil
}

func (f *fakeDirectory) DeleteTag(ctx context.Context, deviceID, tag string) error {
	f.deleted = append(f.deleted, tag)
	return nil
}

func (f *fakeDirectory) taskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// genieacsDecode mirrors the client's tolerant single decode.
func genieacsDecode(id string) string {
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return id
}

type fakeOTP struct {
	issueOK  bool
	verifyOK bool
	issued   []string
	policy   struct {
		length, expiry int
		template       string
	}
}

func (f *fakeOTP) Issue(ctx context.Context, key, phone string, p otp.Policy) bool {
	f.issued = append(f.issued, key+"->"+phone)
	f.policy.length, f.policy.expiry, f.policy.template = p.Length, p.ExpirySeconds, p.Template
	return f.issueOK
}

func (f *fakeOTP) Verify(ctx context.Context, key, code string) bool {
	return f.verifyOK
}

type fakeMessenger struct {
	mu      sync.Mutex
	ok      bool
	numbers []string
	msgs    []string
	cfgs    []gateway.Config
}

func (f *fakeMessenger) Send(ctx context.Context, cfg gateway.Config, number, message string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.numbers = append(f.numbers, number)
	f.msgs = append(f.msgs, message)
	f.cfgs = append(f.cfgs, cfg)
	return f.ok
}

func newSettingsStore(t *testing.T, mutate func(*settings.Settings)) *settings.FileStore {
	t.Helper()
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "settings.json"))
	if mutate == nil {
		return store
	}
	doc := settings.Defaults()
	mutate(&doc)
	if _, err := store.SaveOTP(doc.OTPSection()); err != nil {
		t.Fatalf("SaveOTP: %v", err)
	}
	if _, err := store.SaveGateway(doc.WhatsappGateway, doc.Gateways); err != nil {
		t.Fatalf("SaveGateway: %v", err)
	}
	return store
}

func newTokens(t *testing.T) *security.SessionTokens {
	t.Helper()
	tokens, err := security.NewSessionTokens([]byte("0123456789abcdef0123"), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionTokens: %v", err)
	}
	return tokens
}

func device(id string, tags ...string) domain.Record {
	raw := make([]any, len(tags))
	for i, t := range tags {
		raw[i] = t
	}
	return domain.Record{"_id": id, "_tags": raw}
}
