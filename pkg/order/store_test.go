package order

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// In-memory SQLite: a second connection would see an empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testOrder(buyerID string) *Order {
	return &Order{
		ID:      uuid.NewString(),
		BuyerID: buyerID,
		Shipping: Shipping{
			FullName: "Asha Verma",
			Email:    "asha@example.com",
			Phone:    "+91-9876543210",
			Address:  "14 MG Road",
			City:     "Bengaluru",
			State:    "Karnataka",
			ZipCode:  "560001",
			Country:  "India",
		},
		Lines: []PricedLine{
			{ProductID: "sofa-1", ProductName: "Velvet Sofa", Quantity: 2, UnitPriceMinor: 15000},
		},
		TotalAmountMinor: 30000,
		Currency:         "INR",
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store, err := NewStore(newTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	o := testOrder("buyer-1")
	require.NoError(t, store.Create(ctx, o))

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, got.PaymentState)
	assert.Equal(t, int64(30000), got.TotalAmountMinor)
	assert.Equal(t, "INR", got.Currency)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, int64(15000), got.Lines[0].UnitPriceMinor)
	assert.Equal(t, "Asha Verma", got.Shipping.FullName)
	assert.Nil(t, got.Proof)
	assert.Nil(t, got.Receipt)
}

func TestStore_Get_NotFound(t *testing.T) {
	store, err := NewStore(newTestDB(t))
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetForBuyer_Scoped(t *testing.T) {
	store, err := NewStore(newTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	o := testOrder("buyer-1")
	require.NoError(t, store.Create(ctx, o))

	_, err = store.GetForBuyer(ctx, o.ID, "buyer-1")
	assert.NoError(t, err)

	// Another buyer must not be able to read the order.
	_, err = store.GetForBuyer(ctx, o.ID, "buyer-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_MarkPaid_OnlyFromPending(t *testing.T) {
	store, err := NewStore(newTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	o := testOrder("buyer-1")
	require.NoError(t, store.Create(ctx, o))

	proof := &PaymentProof{
		Kind:             ProofHostedSignature,
		GatewayOrderID:   "gw_1",
		GatewayPaymentID: "pay_1",
		Signature:        "abc",
	}
	require.NoError(t, store.MarkPaid(ctx, o.ID, proof))

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePaid, got.PaymentState)
	require.NotNil(t, got.Proof)
	assert.Equal(t, "pay_1", got.Proof.GatewayPaymentID)

	// Replay hits the idempotency guard.
	err = store.MarkPaid(ctx, o.ID, proof)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	// A paid order can never be un-paid.
	err = store.MarkFailed(ctx, o.ID)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestStore_MarkFailed_Terminal(t *testing.T) {
	store, err := NewStore(newTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	o := testOrder("buyer-1")
	require.NoError(t, store.Create(ctx, o))
	require.NoError(t, store.MarkFailed(ctx, o.ID))

	err = store.MarkPaid(ctx, o.ID, &PaymentProof{Kind: ProofHostedSignature})
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestStore_MarkPaid_NotFound(t *testing.T) {
	store, err := NewStore(newTestDB(t))
	require.NoError(t, err)

	err = store.MarkPaid(context.Background(), "missing", &PaymentProof{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AttachReceipt(t *testing.T) {
	store, err := NewStore(newTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	o := testOrder("buyer-1")
	require.NoError(t, store.Create(ctx, o))

	// Receipt only attaches to a Paid order.
	r := &Receipt{Locator: "cas://sha256:aa", ImageLocator: "cas://sha256:bb", ContentHash: "sha256:aa", CreatedAt: time.Now().UTC()}
	err = store.AttachReceipt(ctx, o.ID, r)
	assert.True(t, errors.Is(err, ErrAlreadyFinalized))

	require.NoError(t, store.MarkPaid(ctx, o.ID, &PaymentProof{Kind: ProofHostedSignature}))
	require.NoError(t, store.AttachReceipt(ctx, o.ID, r))

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Receipt)
	assert.Equal(t, "cas://sha256:aa", got.Receipt.Locator)

	// Second attachment is rejected; receipts are write-once.
	err = store.AttachReceipt(ctx, o.ID, &Receipt{Locator: "cas://sha256:cc"})
	assert.True(t, errors.Is(err, ErrAlreadyFinalized))
}

func TestStore_FailStalePending(t *testing.T) {
	store, err := NewStore(newTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	stale := testOrder("buyer-1")
	require.NoError(t, store.Create(ctx, stale))
	paid := testOrder("buyer-1")
	require.NoError(t, store.Create(ctx, paid))
	require.NoError(t, store.MarkPaid(ctx, paid.ID, &PaymentProof{Kind: ProofHostedSignature}))

	n, err := store.FailStalePending(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.PaymentState)

	// Paid orders are untouched by cleanup.
	got, err = store.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePaid, got.PaymentState)
}

func TestShipping_Validate(t *testing.T) {
	s := testOrder("b").Shipping
	assert.NoError(t, s.Validate())

	s.Email = " "
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}
