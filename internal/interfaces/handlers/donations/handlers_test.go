package donations

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	capsvc "bloodbank-ledger/internal/application/capacity"
	"bloodbank-ledger/internal/application/directory"
	donationsvc "bloodbank-ledger/internal/application/donations"
	ledgersvc "bloodbank-ledger/internal/application/ledger"
	subsvc "bloodbank-ledger/internal/application/subscriptions"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/infrastructure/locks"
	"bloodbank-ledger/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type donationsTest struct {
	app   *fiber.App
	svc   *donationsvc.Service
	donor domain.Party
	org   domain.Party
}

func setupDonationsTest(t *testing.T) donationsTest {
	t.Helper()
	db := testutil.OpenDB(t)
	dir := &directory.Service{DB: db}
	lk := locks.NewLocal(time.Second)
	svc := &donationsvc.Service{
		DB:            db,
		Directory:     dir,
		Subscriptions: &subsvc.Service{DB: db, Directory: dir, Locks: lk},
		Ledger:        &ledgersvc.Service{DB: db, Directory: dir, Locks: lk},
		Capacity:      &capsvc.Service{DB: db, Directory: dir, Locks: lk},
		Locks:         lk,
	}
	h := &Handlers{Service: svc}
	app := fiber.New()
	app.Post("/donate", h.Donate)
	app.Get("/organisation-donations", h.OrganisationDonations)
	app.Get("/donor-donations", h.DonorDonations)

	dt := donationsTest{
		app:   app,
		svc:   svc,
		donor: testutil.Donor(t, db, "alice", domain.OPositive),
		org:   testutil.Party(t, db, domain.RoleOrganisation, "Bank"),
	}
	_, err := svc.Capacity.SetCapacity(context.Background(), dt.donor.ID, capsvc.Settings{BloodGroup: "O+", TotalCapacityMl: 1000})
	require.NoError(t, err)
	return dt
}

func (dt donationsTest) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := dt.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (dt donationsTest) donateBody(amount int) map[string]interface{} {
	return map[string]interface{}{
		"donor_id":        dt.donor.ID.String(),
		"organisation_id": dt.org.ID.String(),
		"blood_group":     "O+",
		"amount_ml":       amount,
	}
}

func errorOf(body map[string]interface{}) map[string]interface{} {
	e, _ := body["error"].(map[string]interface{})
	return e
}

func TestDonate_RequiresSubscription(t *testing.T) {
	dt := setupDonationsTest(t)
	status, body := dt.do(t, "POST", "/donate", dt.donateBody(300), nil)
	assert.Equal(t, 403, status)
	assert.Equal(t, "You must be subscribed to this organisation to donate", errorOf(body)["message"])
}

func TestDonate_Created(t *testing.T) {
	dt := setupDonationsTest(t)
	_, err := dt.svc.Subscriptions.Subscribe(context.Background(), dt.donor.ID, dt.org.ID)
	require.NoError(t, err)

	status, body := dt.do(t, "POST", "/donate", dt.donateBody(300), nil)
	require.Equal(t, 201, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, false, data["replayed"])
	capacity := data["capacity"].(map[string]interface{})
	assert.Equal(t, 700.0, capacity["available_capacity_ml"])
}

func TestDonate_IdempotencyKeyReplays(t *testing.T) {
	dt := setupDonationsTest(t)
	_, err := dt.svc.Subscriptions.Subscribe(context.Background(), dt.donor.ID, dt.org.ID)
	require.NoError(t, err)
	headers := map[string]string{IdempotencyHeader: "retry-1"}

	status, first := dt.do(t, "POST", "/donate", dt.donateBody(300), headers)
	require.Equal(t, 201, status)
	status, second := dt.do(t, "POST", "/donate", dt.donateBody(300), headers)
	require.Equal(t, 200, status)

	firstDonation := first["data"].(map[string]interface{})["donation"].(map[string]interface{})
	secondData := second["data"].(map[string]interface{})
	assert.Equal(t, true, secondData["replayed"])
	assert.Equal(t, firstDonation["id"], secondData["donation"].(map[string]interface{})["id"])

	status, body := dt.do(t, "POST", "/donate", dt.donateBody(200), headers)
	assert.Equal(t, 409, status)
	assert.Equal(t, "conflict", errorOf(body)["details"].(map[string]interface{})["code"])
}

func TestDonate_Validation(t *testing.T) {
	dt := setupDonationsTest(t)

	status, body := dt.do(t, "POST", "/donate", map[string]interface{}{"donor_id": dt.donor.ID.String()}, nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "Missing required fields", errorOf(body)["message"])

	b := dt.donateBody(300)
	b["organisation_id"] = "not-a-uuid"
	status, body = dt.do(t, "POST", "/donate", b, nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "Invalid UUID format for organisation_id", errorOf(body)["message"])

	b = dt.donateBody(50)
	status, _ = dt.do(t, "POST", "/donate", b, nil)
	assert.Equal(t, 400, status)
}

func TestDonate_InsufficientCapacityDetails(t *testing.T) {
	dt := setupDonationsTest(t)
	_, err := dt.svc.Subscriptions.Subscribe(context.Background(), dt.donor.ID, dt.org.ID)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		status, _ := dt.do(t, "POST", "/donate", dt.donateBody(450), nil)
		require.Equal(t, 201, status)
	}

	status, body := dt.do(t, "POST", "/donate", dt.donateBody(200), nil)
	assert.Equal(t, 400, status)
	details := errorOf(body)["details"].(map[string]interface{})
	assert.Equal(t, "insufficient_capacity", details["code"])
	assert.Equal(t, 100.0, details["available"])
	assert.Equal(t, 200.0, details["requested"])
}

func TestDonationListings(t *testing.T) {
	dt := setupDonationsTest(t)
	_, err := dt.svc.Subscriptions.Subscribe(context.Background(), dt.donor.ID, dt.org.ID)
	require.NoError(t, err)
	status, _ := dt.do(t, "POST", "/donate", dt.donateBody(300), nil)
	require.Equal(t, 201, status)

	status, body := dt.do(t, "GET", "/organisation-donations?organisation_id="+dt.org.ID.String()+"&blood_group=O%2B", nil, nil)
	require.Equal(t, 200, status)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, 1.0, body["metadata"].(map[string]interface{})["count"])

	status, body = dt.do(t, "GET", "/organisation-donations?organisation_id="+dt.org.ID.String()+"&donation_type=plasma", nil, nil)
	require.Equal(t, 200, status)
	assert.Len(t, body["data"], 0)

	status, _ = dt.do(t, "GET", "/organisation-donations?organisation_id="+dt.org.ID.String()+"&donation_type=soup", nil, nil)
	assert.Equal(t, 400, status)

	status, _ = dt.do(t, "GET", "/organisation-donations?organisation_id="+dt.org.ID.String()+"&start_date=2024-02-01&end_date=2024-01-01", nil, nil)
	assert.Equal(t, 400, status)

	status, body = dt.do(t, "GET", "/donor-donations?donor_id="+dt.donor.ID.String(), nil, nil)
	require.Equal(t, 200, status)
	assert.Len(t, body["data"], 1)

	status, _ = dt.do(t, "GET", "/donor-donations", nil, nil)
	assert.Equal(t, 400, status)
}
