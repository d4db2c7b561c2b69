package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcoach/credits-backend/pkg/config"
)

const secret = "whsec_unit"

func sign(payload []byte, key string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(key))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", Secret: secret, Env: "test"}, nil)
	require.NoError(t, err)
	return client
}

func TestNewClientMatchesKeyToEnvironment(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{name: "test key", cfg: config.StripeConfig{APIKey: "sk_test_1", Secret: secret, Env: "test"}},
		{name: "restricted live key", cfg: config.StripeConfig{APIKey: "rk_live_1", Secret: secret, Env: "LIVE"}},
		{name: "blank env defaults to test", cfg: config.StripeConfig{APIKey: "sk_test_1", Secret: secret}},
		{name: "live key in test", cfg: config.StripeConfig{APIKey: "sk_live_1", Secret: secret, Env: "test"}, wantErr: true},
		{name: "unknown env", cfg: config.StripeConfig{APIKey: "sk_test_1", Secret: secret, Env: "staging"}, wantErr: true},
		{name: "missing key", cfg: config.StripeConfig{Secret: secret}, wantErr: true},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_1"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, client.Environment())
		})
	}
}

func TestVerify(t *testing.T) {
	client := newClient(t)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27","data":{"object":{}}}`)

	event, err := client.Verify(payload, sign(payload, secret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	_, err = client.Verify(payload, sign(payload, "whsec_other", time.Now()))
	assert.Error(t, err)

	_, err = client.Verify(payload, sign(payload, secret, time.Now().Add(-time.Hour)))
	assert.Error(t, err, "stale timestamps are outside tolerance")

	_, err = client.Verify(payload, "")
	assert.ErrorIs(t, err, errSignatureMissing)
}
