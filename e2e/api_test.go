package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expense struct {
	ID     int64   `json:"id"`
	Title  string  `json:"title"`
	Amount float64 `json:"amount"`
	UserID int64   `json:"user_id"`
}

func request(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, appURL+path, payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func signupAndLogin(t *testing.T, username, email, password string) string {
	t.Helper()

	resp, body := request(t, http.MethodPost, "/signup", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "signup failed: %s", body)

	resp, body = request(t, http.MethodPost, "/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login failed: %s", body)

	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &loginResp))
	require.NotEmpty(t, loginResp.Token)
	return loginResp.Token
}

func list(t *testing.T, token string) []expense {
	t.Helper()

	resp, body := request(t, http.MethodGet, "/expenses", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var expenses []expense
	require.NoError(t, json.Unmarshal(body, &expenses))
	return expenses
}

func TestExpenseLifecycle(t *testing.T) {
	token := signupAndLogin(t, "alice", "alice-e2e@x.com", "pw1")

	resp, _ := request(t, http.MethodPost, "/expenses", token, map[string]any{
		"title": "coffee", "amount": 3.50,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	expenses := list(t, token)
	require.Len(t, expenses, 1)
	assert.Equal(t, "coffee", expenses[0].Title)
	assert.Equal(t, 3.50, expenses[0].Amount)

	id := expenses[0].ID
	resp, _ = request(t, http.MethodPut, fmtPath(id), token, map[string]any{
		"title": "tea", "amount": 4.00,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	expenses = list(t, token)
	require.Len(t, expenses, 1)
	assert.Equal(t, "tea", expenses[0].Title)
	assert.Equal(t, 4.00, expenses[0].Amount)

	resp, _ = request(t, http.MethodDelete, fmtPath(id), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, list(t, token))
}

func TestCrossUserAccessDenied(t *testing.T) {
	aliceToken := signupAndLogin(t, "alice2", "alice2-e2e@x.com", "pw1")
	bobToken := signupAndLogin(t, "bob2", "bob2-e2e@x.com", "pw2")

	resp, _ := request(t, http.MethodPost, "/expenses", aliceToken, map[string]any{
		"title": "groceries", "amount": 42.00,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	aliceExpenses := list(t, aliceToken)
	require.NotEmpty(t, aliceExpenses)
	aliceID := aliceExpenses[len(aliceExpenses)-1].ID

	// Bob never sees alice's records.
	for _, e := range list(t, bobToken) {
		assert.NotEqual(t, aliceID, e.ID)
	}

	// Bob's update/delete against alice's id succeed as silent no-ops.
	resp, _ = request(t, http.MethodPut, fmtPath(aliceID), bobToken, map[string]any{
		"title": "hijacked", "amount": 0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = request(t, http.MethodDelete, fmtPath(aliceID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	found := false
	for _, e := range list(t, aliceToken) {
		if e.ID == aliceID {
			found = true
			assert.Equal(t, "groceries", e.Title)
			assert.Equal(t, 42.00, e.Amount)
		}
	}
	assert.True(t, found, "alice's expense must survive bob's attempts")
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	resp, _ := request(t, http.MethodGet, "/expenses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDuplicateSignupRejected(t *testing.T) {
	resp, _ := request(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "carol", "email": "carol-e2e@x.com", "password": "pw3",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := request(t, http.MethodPost, "/signup", "", map[string]string{
		"username": "carol-again", "email": "carol-e2e@x.com", "password": "other",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Email already exists")
}

func fmtPath(id int64) string {
	return "/expenses/" + strconv.FormatInt(id, 10)
}
