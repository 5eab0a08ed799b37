package journal

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const DefaultIndex = "gate-sessions"

// OpenSearch stores entries as documents keyed by session id, so a session
// recorded twice is overwritten rather than duplicated.
type OpenSearch struct {
	addr               string
	username           string
	password           string
	insecureSkipVerify bool
	index              string

	client *opensearch.Client
}

type Option func(*OpenSearch)

func WithUsername(username string) Option {
	return func(o *OpenSearch) {
		o.username = username
	}
}

func WithPassword(password string) Option {
	return func(o *OpenSearch) {
		o.password = password
	}
}

func WithSkipTLS() Option {
	return func(o *OpenSearch) {
		o.insecureSkipVerify = true
	}
}

func WithIndex(index string) Option {
	return func(o *OpenSearch) {
		o.index = index
	}
}

func NewOpenSearch(ctx context.Context, addr string, opts ...Option) (*OpenSearch, error) {
	o := &OpenSearch{addr: addr, index: DefaultIndex}
	for _, opt := range opts {
		opt(o)
	}

	cfg := opensearch.Config{
		Addresses: []string{o.addr},
		Username:  o.username,
		Password:  o.password,
	}
	if o.insecureSkipVerify {
		cfg.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	c, err := opensearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}
	o.client = c

	if err := o.Ping(ctx); err != nil {
		return nil, err
	}
	if err := o.createIndex(ctx); err != nil {
		return nil, fmt.Errorf("unable to create opensearch index: %w", err)
	}
	return o, nil
}

func (o *OpenSearch) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, o.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("unable to ping opensearch: %s", res.Status())
	}
	return nil
}

func (o *OpenSearch) createIndex(ctx context.Context) error {
	res, err := opensearchapi.IndicesCreateRequest{Index: o.index}.Do(ctx, o.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusBadRequest {
		// Index already exists
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("unexpected status %s", res.Status())
	}
	return nil
}

func (o *OpenSearch) Record(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("unable to encode JSON: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      o.index,
		DocumentID: e.SessionId,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, o.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch returned an invalid status %s: %s", res.Status(), decodeError(res.Body))
	}
	log.Debugf("recorded session %s (%s)", e.SessionId, e.Outcome)
	return nil
}

func decodeError(body io.Reader) string {
	var errorMessage struct {
		Error struct {
			Reason string `json:"reason"`
		} `json:"error"`
	}
	_ = json.NewDecoder(body).Decode(&errorMessage)
	return errorMessage.Error.Reason
}

var _ Recorder = (*OpenSearch)(nil)
