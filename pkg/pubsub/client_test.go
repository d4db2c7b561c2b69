package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quillcoach/credits-backend/pkg/config"
)

func TestConfiguredSkipsBlank(t *testing.T) {
	c := &Client{cfg: config.PubSubConfig{
		EvaluationTopic:        "qc-evaluation-events",
		EvaluationSubscription: " qc-evaluation-sub ",
	}}
	assert.Equal(t, []string{"qc-evaluation-sub"}, c.configured(kindSubscription))
	assert.Equal(t, []string{"qc-evaluation-events"}, c.configured(kindTopic))
}

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "quillcoach-dev"}

	assert.Equal(t, "projects/quillcoach-dev/subscriptions/evals", c.resource(kindSubscription, "evals"))
	assert.Equal(t, "projects/other/subscriptions/evals", c.resource(kindSubscription, "projects/other/subscriptions/evals"))
	assert.Equal(t, "projects/quillcoach-dev/topics/qc-ledger-events", c.resource(kindTopic, "qc-ledger-events"))
	assert.Equal(t, "projects/quillcoach-dev/topics/projects/x/subscriptions/y", c.resource(kindTopic, "projects/x/subscriptions/y"))
	assert.Empty(t, c.resource(kindTopic, "  "))
	assert.Empty(t, (&Client{}).resource(kindTopic, "orphan"))
}

func TestOptionalHandles(t *testing.T) {
	c := &Client{projectID: "quillcoach-dev"}
	assert.Nil(t, c.LedgerSubscription())
	assert.Nil(t, c.Publisher("qc-ledger-events"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestDescribeLookup(t *testing.T) {
	assert.NoError(t, describeLookup(kindTopic, "t", nil))
	assert.EqualError(t, describeLookup(kindSubscription, "s", status.Error(codes.NotFound, "gone")), `pubsub subscription "s" does not exist`)
	assert.ErrorContains(t, describeLookup(kindTopic, "t", errors.New("dial")), `checking pubsub topic "t"`)
}

func TestCredentialOptions(t *testing.T) {
	assert.Empty(t, credentialOptions(config.GCPConfig{}))
	assert.Len(t, credentialOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	assert.Len(t, credentialOptions(config.GCPConfig{ApplicationCredentials: "/etc/gcp.json"}), 1)
}
