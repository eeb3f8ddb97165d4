package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"message_relay/internal/models"
	"message_relay/internal/payment"

	"github.com/stretchr/testify/require"
)

type fakePayments struct {
	checkoutURL  string
	clientSecret string
	createErr    error

	verification *payment.Verification
	verifyErr    error

	lastText    string
	lastOrigin  string
	verifyCalls int
}

func (f *fakePayments) CreateCheckoutSession(_ context.Context, pendingText, origin string) (string, error) {
	f.lastText = pendingText
	f.lastOrigin = origin
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.checkoutURL, nil
}

func (f *fakePayments) CreatePaymentIntent(_ context.Context, pendingText string) (string, error) {
	f.lastText = pendingText
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.clientSecret, nil
}

func (f *fakePayments) VerifyReference(_ context.Context, _ payment.Reference) (*payment.Verification, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verification, nil
}

// fakeStore mimics the transactional slot: one current message, consumed
// references replay their first outcome.
type fakeStore struct {
	current  *string
	consumed map[string]models.ExchangeOutcome

	latestErr   error
	exchangeErr error

	exchangeCalls int
	latestCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{consumed: make(map[string]models.ExchangeOutcome)}
}

func (f *fakeStore) Latest(_ context.Context) (*models.Message, error) {
	f.latestCalls++
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	if f.current == nil {
		return nil, nil
	}
	return &models.Message{Text: *f.current}, nil
}

func (f *fakeStore) Exchange(_ context.Context, referenceID string, text string) (*models.ExchangeOutcome, error) {
	f.exchangeCalls++
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}

	if cached, ok := f.consumed[referenceID]; ok {
		out := cached
		out.Replayed = true
		return &out, nil
	}

	previous := f.current
	saved := text != ""
	if saved {
		t := text
		f.current = &t
	}

	outcome := models.ExchangeOutcome{Previous: previous, Saved: saved}
	f.consumed[referenceID] = outcome

	out := outcome
	return &out, nil
}

func paidVerification(text string) *payment.Verification {
	return &payment.Verification{Paid: true, Status: "paid", PendingText: text}
}

func Test_Initiate_Rejects_Empty_And_Oversized_Text(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{checkoutURL: "https://checkout.example/cs_1"}
	svc := NewExchangeService(payments, newFakeStore(), nil)

	_, err := svc.InitiateCheckout(context.Background(), "   ", "https://example.org")
	req.ErrorIs(err, ErrInvalidMessage)

	_, err = svc.InitiateCheckout(context.Background(), strings.Repeat("x", 501), "https://example.org")
	req.ErrorIs(err, ErrInvalidMessage)

	_, err = svc.InitiateIntent(context.Background(), "")
	req.ErrorIs(err, ErrInvalidMessage)
}

func Test_Initiate_Accepts_Boundary_Lengths(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{checkoutURL: "https://checkout.example/cs_1"}
	svc := NewExchangeService(payments, newFakeStore(), nil)

	url, err := svc.InitiateCheckout(context.Background(), "x", "https://example.org")
	req.NoError(err)
	req.Equal("https://checkout.example/cs_1", url)

	_, err = svc.InitiateCheckout(context.Background(), strings.Repeat("y", 500), "https://example.org")
	req.NoError(err)
	req.Equal(strings.Repeat("y", 500), payments.lastText)
}

func Test_Initiate_Trims_Before_Validation(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{clientSecret: "pi_1_secret"}
	svc := NewExchangeService(payments, newFakeStore(), nil)

	secret, err := svc.InitiateIntent(context.Background(), "  hello  ")
	req.NoError(err)
	req.Equal("pi_1_secret", secret)
	req.Equal("hello", payments.lastText)
}

func Test_Confirm_NoToken_Skips_Verification(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{verification: paidVerification("hi")}
	store := newFakeStore()
	svc := NewExchangeService(payments, store, nil)

	_, err := svc.Confirm(context.Background(), payment.Reference{})
	req.ErrorIs(err, ErrNoToken)
	req.Zero(payments.verifyCalls)
	req.Zero(store.exchangeCalls)
}

func Test_Confirm_Unpaid_Never_Touches_Store(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{verification: &payment.Verification{Paid: false, Status: "unpaid", PendingText: "hi"}}
	store := newFakeStore()
	svc := NewExchangeService(payments, store, nil)

	_, err := svc.Confirm(context.Background(), payment.SessionReference("cs_1"))

	var unpaid *UnpaidError
	req.ErrorAs(err, &unpaid)
	req.Equal("unpaid", unpaid.Status)
	req.Zero(store.exchangeCalls)
	req.Zero(store.latestCalls)
}

func Test_Confirm_Verification_Fault_Is_Not_Unpaid(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{verifyErr: errors.New("processor timeout")}
	store := newFakeStore()
	svc := NewExchangeService(payments, store, nil)

	_, err := svc.Confirm(context.Background(), payment.IntentReference("pi_1"))
	req.ErrorIs(err, ErrVerification)

	var unpaid *UnpaidError
	req.False(errors.As(err, &unpaid))
	req.Zero(store.exchangeCalls)
}

func Test_Confirm_Empty_Store_Returns_Null_Previous(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{verification: paidVerification("hello")}
	store := newFakeStore()
	svc := NewExchangeService(payments, store, nil)

	outcome, err := svc.Confirm(context.Background(), payment.SessionReference("cs_1"))
	req.NoError(err)
	req.Nil(outcome.Previous)
	req.True(outcome.Saved)
	req.NotNil(store.current)
	req.Equal("hello", *store.current)
}

func Test_Confirm_Swap_Returns_Previous_Not_Own_Message(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{verification: paidVerification("hello")}
	store := newFakeStore()
	svc := NewExchangeService(payments, store, nil)

	outcome, err := svc.Confirm(context.Background(), payment.SessionReference("cs_1"))
	req.NoError(err)
	req.Nil(outcome.Previous)
	req.True(outcome.Saved)

	payments.verification = paidVerification("world")
	outcome, err = svc.Confirm(context.Background(), payment.SessionReference("cs_2"))
	req.NoError(err)
	req.NotNil(outcome.Previous)
	req.Equal("hello", *outcome.Previous)
	req.True(outcome.Saved)
	req.Equal("world", *store.current)
}

func Test_Confirm_Empty_Text_Reveals_Without_Writing(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	seed := "hello"
	store.current = &seed

	payments := &fakePayments{verification: paidVerification("   ")}
	svc := NewExchangeService(payments, store, nil)

	outcome, err := svc.Confirm(context.Background(), payment.SessionReference("cs_1"))
	req.NoError(err)
	req.False(outcome.Saved)
	req.NotNil(outcome.Previous)
	req.Equal("hello", *outcome.Previous)
	req.Equal("hello", *store.current)
}

func Test_Confirm_Replay_Returns_First_Outcome(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{verification: paidVerification("hello")}
	store := newFakeStore()
	svc := NewExchangeService(payments, store, nil)

	first, err := svc.Confirm(context.Background(), payment.SessionReference("cs_1"))
	req.NoError(err)
	req.Nil(first.Previous)
	req.True(first.Saved)

	// a refresh of the confirmation page re-verifies as paid, but must not
	// swap again or show the payer their own message
	second, err := svc.Confirm(context.Background(), payment.SessionReference("cs_1"))
	req.NoError(err)
	req.True(second.Replayed)
	req.Nil(second.Previous)
	req.True(second.Saved)
	req.Equal("hello", *store.current)
}

func Test_Confirm_Store_Fault_Maps_To_StoreUnavailable(t *testing.T) {
	req := require.New(t)
	payments := &fakePayments{verification: paidVerification("hello")}
	store := newFakeStore()
	store.exchangeErr = errors.New("connection refused")
	svc := NewExchangeService(payments, store, nil)

	_, err := svc.Confirm(context.Background(), payment.SessionReference("cs_1"))
	req.ErrorIs(err, ErrStoreUnavailable)
}

func Test_Last_Empty_Store_Is_Not_An_Error(t *testing.T) {
	req := require.New(t)
	svc := NewExchangeService(&fakePayments{}, newFakeStore(), nil)

	m, err := svc.Last(context.Background())
	req.NoError(err)
	req.Nil(m)
}

func Test_Last_Store_Fault_Maps_To_StoreUnavailable(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	store.latestErr = errors.New("connection refused")
	svc := NewExchangeService(&fakePayments{}, store, nil)

	_, err := svc.Last(context.Background())
	req.ErrorIs(err, ErrStoreUnavailable)
}
