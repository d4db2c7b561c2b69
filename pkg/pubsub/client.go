package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quillcoach/credits-backend/pkg/config"
	"github.com/quillcoach/credits-backend/pkg/logger"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

// Client wraps the Pub/Sub v2 client with the ledger and evaluation topics
// and subscriptions resolved against one project.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient connects and fails fast if a configured topic or subscription is
// missing; provisioning is left to infrastructure.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	if strings.TrimSpace(cfg.EvaluationSubscription) == "" {
		return nil, errors.New("evaluation subscription is required")
	}

	raw, err := pubsub.NewClient(ctx, projectID, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: projectID, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project":   projectID,
			"topics":        c.configured(kindTopic),
			"subscriptions": c.configured(kindSubscription),
		}), "pubsub client initialized")
	}
	return c, nil
}

func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// configured lists non-blank resource ids of the given kind.
func (c *Client) configured(kind string) []string {
	candidates := []string{c.cfg.EvaluationTopic, c.cfg.LedgerTopic}
	if kind == kindSubscription {
		candidates = []string{c.cfg.EvaluationSubscription, c.cfg.LedgerSubscription}
	}
	var ids []string
	for _, id := range candidates {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Ping checks every configured topic and subscription and reports all
// missing resources at once.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	var errs error
	for _, id := range c.configured(kindTopic) {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.resource(kindTopic, id)})
		errs = multierr.Append(errs, describeLookup(kindTopic, id, err))
	}
	for _, id := range c.configured(kindSubscription) {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.resource(kindSubscription, id)})
		errs = multierr.Append(errs, describeLookup(kindSubscription, id, err))
	}
	return errs
}

func describeLookup(kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", strings.TrimSuffix(kind, "s"), id)
	default:
		return fmt.Errorf("checking pubsub %s %q: %w", strings.TrimSuffix(kind, "s"), id, err)
	}
}

// Subscription returns a subscriber for an id or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	full := c.resource(kindSubscription, name)
	if full == "" || c.client == nil {
		return nil
	}
	return c.client.Subscriber(full)
}

// EvaluationSubscription feeds the AI evaluation trigger.
func (c *Client) EvaluationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.EvaluationSubscription)
}

// LedgerSubscription is optional; nil when unset.
func (c *Client) LedgerSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.LedgerSubscription)
}

func (c *Client) Publisher(name string) *pubsub.Publisher {
	full := c.resource(kindTopic, name)
	if full == "" || c.client == nil {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resource expands an id to projects/<p>/<kind>/<id>; full names pass through.
func (c *Client) resource(kind, name string) string {
	name = strings.TrimSpace(name)
	if c == nil || name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + name
}
