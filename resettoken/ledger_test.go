package resettoken_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/config"
	"github.com/user/taskdesk-go/memstore"
	"github.com/user/taskdesk-go/metrics"
	"github.com/user/taskdesk-go/password"
	"github.com/user/taskdesk-go/resettoken"
	"github.com/user/taskdesk-go/users"
)

type sentMail struct {
	to, link string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeNotifier) SendPasswordReset(_ context.Context, to, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, link: link})
	return f.err
}

type fixture struct {
	store    *memstore.Store
	ledger   *resettoken.Ledger
	notifier *fakeNotifier
	hasher   *password.Bcrypt
	user     *users.User
	now      time.Time
}

func newFixture(t *testing.T, cfg config.ResetConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		notifier: &fakeNotifier{},
		hasher:   password.NewBcrypt(bcrypt.MinCost),
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	hash, err := f.hasher.Hash("oldpass")
	if err != nil {
		t.Fatal(err)
	}
	f.user = &users.User{Email: "alice@example.com", PasswordHash: hash}
	if err := f.store.Users.Create(context.Background(), f.user); err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:3000/"
	}
	f.ledger = resettoken.NewLedger(f.store.Tokens, f.store.Users, f.hasher, f.notifier, cfg).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) passwordMatches(t *testing.T, plain string) bool {
	t.Helper()
	u, err := f.store.Users.GetByID(context.Background(), f.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	return f.hasher.Compare(u.PasswordHash, plain) == nil
}

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestIssue(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	ctx := context.Background()

	token, err := f.ledger.Issue(ctx, "  alice@example.com ")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !hexToken.MatchString(token) {
		t.Fatalf("token %q is not 64 hex chars", token)
	}

	rec, err := f.store.Tokens.Get(ctx, token)
	if err != nil {
		t.Fatalf("token not stored: %v", err)
	}
	if rec.UserID != f.user.ID {
		t.Errorf("UserID = %v, want %v", rec.UserID, f.user.ID)
	}
	if want := f.now.Add(resettoken.DefaultTTL); !rec.Expires.Equal(want) {
		t.Errorf("Expires = %v, want %v", rec.Expires, want)
	}
}

func TestIssueUnknownEmailStoresNothing(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})

	for _, email := range []string{"nobody@example.com", "ALICE@example.com", ""} {
		token, err := f.ledger.Issue(context.Background(), email)
		if err != nil || token != "" {
			t.Fatalf("Issue(%q) = %q, %v; want empty token and nil error", email, token, err)
		}
	}
	if n := f.store.Tokens.Len(); n != 0 {
		t.Fatalf("stored %d tokens, want 0", n)
	}
}

func TestIssueTokensCoexistByDefault(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	ctx := context.Background()

	first, _ := f.ledger.Issue(ctx, "alice@example.com")
	second, _ := f.ledger.Issue(ctx, "alice@example.com")
	if first == second {
		t.Fatal("two issues returned the same token")
	}
	if n := len(f.store.Tokens.ForUser(f.user.ID)); n != 2 {
		t.Fatalf("outstanding tokens = %d, want 2", n)
	}
	if err := f.ledger.Consume(ctx, first, "newpass1"); err != nil {
		t.Fatalf("Consume first: %v", err)
	}
	if err := f.ledger.Consume(ctx, second, "newpass2"); err != nil {
		t.Fatalf("Consume second: %v", err)
	}
}

func TestIssueInvalidatePrevious(t *testing.T) {
	f := newFixture(t, config.ResetConfig{InvalidatePrevious: true})
	ctx := context.Background()

	first, _ := f.ledger.Issue(ctx, "alice@example.com")
	second, _ := f.ledger.Issue(ctx, "alice@example.com")

	outstanding := f.store.Tokens.ForUser(f.user.ID)
	if len(outstanding) != 1 || outstanding[0].Token != second {
		t.Fatalf("outstanding = %+v, want only the newest token", outstanding)
	}
	if err := f.ledger.Consume(ctx, first, "newpass1"); !errors.Is(err, resettoken.ErrInvalidToken) {
		t.Fatalf("Consume old token error = %v, want ErrInvalidToken", err)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	ctx := context.Background()
	token, _ := f.ledger.Issue(ctx, "alice@example.com")

	if err := f.ledger.Consume(ctx, token, "brandnew"); err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if !f.passwordMatches(t, "brandnew") {
		t.Fatal("password was not updated")
	}
	if err := f.ledger.Consume(ctx, token, "another1"); !errors.Is(err, resettoken.ErrInvalidToken) {
		t.Fatalf("second Consume error = %v, want ErrInvalidToken", err)
	}
	if !f.passwordMatches(t, "brandnew") {
		t.Fatal("second Consume changed the password")
	}
}

func TestConsumeExpiredNeverHonored(t *testing.T) {
	f := newFixture(t, config.ResetConfig{TokenTTL: 30 * time.Minute})
	ctx := context.Background()
	token, _ := f.ledger.Issue(ctx, "alice@example.com")

	f.now = f.now.Add(31 * time.Minute)
	for i := 0; i < 2; i++ {
		if err := f.ledger.Consume(ctx, token, "brandnew"); !errors.Is(err, resettoken.ErrExpiredToken) {
			t.Fatalf("Consume #%d error = %v, want ErrExpiredToken", i+1, err)
		}
	}
	if !f.passwordMatches(t, "oldpass") {
		t.Fatal("expired token changed the password")
	}

	n, err := f.ledger.Purge(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Purge = %d, %v; want 1, nil", n, err)
	}
}

func TestConsumeExactlyAtExpiry(t *testing.T) {
	f := newFixture(t, config.ResetConfig{TokenTTL: time.Minute})
	ctx := context.Background()
	token, _ := f.ledger.Issue(ctx, "alice@example.com")

	f.now = f.now.Add(time.Minute)
	if err := f.ledger.Consume(ctx, token, "brandnew"); err != nil {
		t.Fatalf("Consume at expiry instant: %v", err)
	}
}

func TestConsumeRejectsShortPasswordWithoutMutation(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	ctx := context.Background()
	token, _ := f.ledger.Issue(ctx, "alice@example.com")

	err := f.ledger.Consume(ctx, token, "abc")
	if !apperror.IsValidationError(err) {
		t.Fatalf("error = %v, want validation error", err)
	}
	appErr, _ := apperror.FromError(err)
	if _, ok := appErr.Fields["password"]; !ok {
		t.Errorf("fields = %v, want a password entry", appErr.Fields)
	}
	if _, err := f.store.Tokens.Get(ctx, token); err != nil {
		t.Fatal("token consumed by a rejected password")
	}
	if !f.passwordMatches(t, "oldpass") {
		t.Fatal("password changed")
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	for _, token := range []string{"", "deadbeef", strings.Repeat("0", 64)} {
		if err := f.ledger.Consume(context.Background(), token, "brandnew"); !errors.Is(err, resettoken.ErrInvalidToken) {
			t.Errorf("Consume(%q) error = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	ctx := context.Background()
	token, _ := f.ledger.Issue(ctx, "alice@example.com")

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.ledger.Consume(ctx, token, "brandnew")
		}(i)
	}
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, resettoken.ErrInvalidToken):
			invalid++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || invalid != workers-1 {
		t.Fatalf("successes = %d, invalid = %d; want 1 and %d", ok, invalid, workers-1)
	}
}

type failingAccounts struct {
	resettoken.Accounts
}

func (failingAccounts) UpdatePassword(context.Context, uuid.UUID, string) error {
	return errors.New("connection reset")
}

func TestConsumeRestoresTokenWhenPasswordUpdateFails(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	ctx := context.Background()
	token, _ := f.ledger.Issue(ctx, "alice@example.com")

	ledger := resettoken.NewLedger(f.store.Tokens, failingAccounts{f.store.Users}, f.hasher, f.notifier,
		config.ResetConfig{BaseURL: "http://localhost"}).WithClock(func() time.Time { return f.now })

	err := ledger.Consume(ctx, token, "brandnew")
	if !apperror.IsDatabaseError(err) {
		t.Fatalf("error = %v, want database error", err)
	}
	if _, err := f.store.Tokens.Get(ctx, token); err != nil {
		t.Fatalf("token not restored: %v", err)
	}
}

func TestRequestReset(t *testing.T) {
	f := newFixture(t, config.ResetConfig{BaseURL: "https://tasks.example.com/"})
	ctx := context.Background()

	if err := f.ledger.RequestReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("RequestReset unknown: %v", err)
	}
	f.ledger.Wait()
	if len(f.notifier.sent) != 0 {
		t.Fatalf("mail sent for unknown email: %+v", f.notifier.sent)
	}

	f.notifier.err = errors.New("smtp down")
	if err := f.ledger.RequestReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestReset with failing notifier: %v", err)
	}
	f.ledger.Wait()
	if len(f.notifier.sent) != 1 {
		t.Fatalf("sent = %d mails, want 1", len(f.notifier.sent))
	}
	mail := f.notifier.sent[0]
	if mail.to != "alice@example.com" {
		t.Errorf("to = %q", mail.to)
	}
	const prefix = "https://tasks.example.com/reset-password?token="
	if !strings.HasPrefix(mail.link, prefix) || !hexToken.MatchString(strings.TrimPrefix(mail.link, prefix)) {
		t.Errorf("link = %q, want %s<64 hex>", mail.link, prefix)
	}
}

func TestLedgerRecordsMetrics(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	reg := prometheus.NewRegistry()
	f.ledger.WithMetrics(metrics.New(reg))
	ctx := context.Background()

	token, _ := f.ledger.Issue(ctx, "alice@example.com")
	_ = f.ledger.Consume(ctx, token, "brandnew")
	_ = f.ledger.Consume(ctx, token, "brandnew")

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				got[key] = c.GetValue()
			}
		}
	}
	want := map[string]float64{
		"taskdesk_password_reset_tokens_issued_total":   1,
		"taskdesk_password_reset_consume_total/success": 1,
		"taskdesk_password_reset_consume_total/invalid": 1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestPurgeRemovesOnlyExpired(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	ctx := context.Background()

	stale, err := f.ledger.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	f.now = f.now.Add(resettoken.DefaultTTL + time.Minute)
	fresh, err := f.ledger.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}

	n, err := f.ledger.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d tokens, want 1", n)
	}
	if _, err := f.store.Tokens.Get(ctx, stale); !errors.Is(err, resettoken.ErrNotFound) {
		t.Errorf("stale token still stored: %v", err)
	}
	if _, err := f.store.Tokens.Get(ctx, fresh); err != nil {
		t.Errorf("fresh token purged: %v", err)
	}
}

type blockingNotifier struct {
	release chan struct{}
	done    chan string
}

func (n *blockingNotifier) SendPasswordReset(ctx context.Context, _, link string) error {
	select {
	case <-n.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	n.done <- link
	return nil
}

func TestRequestResetDoesNotWaitForDelivery(t *testing.T) {
	f := newFixture(t, config.ResetConfig{})
	notifier := &blockingNotifier{release: make(chan struct{}), done: make(chan string, 1)}
	ledger := resettoken.NewLedger(f.store.Tokens, f.store.Users, f.hasher, notifier, config.ResetConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := ledger.RequestReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	// The request is over; delivery must survive its context.
	cancel()
	close(notifier.release)
	ledger.Wait()

	select {
	case link := <-notifier.done:
		if !strings.Contains(link, "token=") {
			t.Errorf("link = %q", link)
		}
	default:
		t.Fatal("reset email was not delivered")
	}
}

func TestConsumeMeasuresPasswordInBytes(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "five two-byte runes", password: strings.Repeat("é", 5)},
		{name: "two runes under six bytes", password: "éé", wantErr: true},
		{name: "24 three-byte runes", password: strings.Repeat("€", 24)},
		{name: "30 three-byte runes", password: strings.Repeat("€", 30), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, config.ResetConfig{})
			ctx := context.Background()
			token, err := f.ledger.Issue(ctx, "alice@example.com")
			if err != nil {
				t.Fatal(err)
			}

			err = f.ledger.Consume(ctx, token, tt.password)
			if tt.wantErr {
				if !apperror.IsValidationError(err) {
					t.Fatalf("Consume = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Consume: %v", err)
			}
			if !f.passwordMatches(t, tt.password) {
				t.Fatal("new password not stored")
			}
		})
	}
}
