// Package portal provides REST access to a CRM portal's telephony and
// CRM endpoints through a webhook-style token URL.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/resilience"
)

// Client defines the portal operations used by the ingestion cycle.
type Client interface {
	// ListCalls enumerates finished calls with a recording, newest
	// first, starting from the given date.
	ListCalls(ctx context.Context, from time.Time) ([]model.RemoteCall, error)
	// ListEntities fetches the CRM objects of one type by portal id.
	ListEntities(ctx context.Context, typ model.CRMEntityType, ids []int) ([]model.Entity, error)
	// ListUsers fetches every portal user.
	ListUsers(ctx context.Context) ([]model.User, error)
	// Download saves a recording to the given path.
	Download(ctx context.Context, url, dest string) error
}

// ClientOption configures the portal client.
type ClientOption func(*httpClient)

// WithRateLimit caps portal requests per second. The portal throttles
// webhooks at two requests per second, so the default matches that.
func WithRateLimit(rps float64) ClientOption {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithHTTPClient substitutes the underlying http.Client. Used by tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	userID  string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a portal client for one webhook endpoint.
func NewClient(baseURL, userID, token string, opts ...ClientOption) Client {
	c := &httpClient{
		baseURL: baseURL,
		userID:  userID,
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the portal's standard response wrapper. Next is a cursor
// into the full result set; absent means the last page.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Next             *int            `json:"next"`
	Total            int             `json:"total"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// call performs one portal method invocation and decodes the envelope.
func (c *httpClient) call(ctx context.Context, method string, params map[string]any) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "portal: rate limit")
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrapf(err, "portal: encoding %s params", method)
	}

	url := fmt.Sprintf("%s/%s/%s/%s.json", c.baseURL, c.userID, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "portal: building %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "portal: calling %s", method), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.New(fmt.Sprintf("portal: %s returned status %d", method, resp.StatusCode))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, eris.Wrapf(err, "portal: decoding %s response", method)
	}
	if env.Error != "" {
		return nil, eris.New(fmt.Sprintf("portal: %s failed: %s (%s)", method, env.Error, env.ErrorDescription))
	}
	return &env, nil
}

// callPaged invokes a portal method repeatedly, following the Next
// cursor, and appends each page's raw result for the caller to decode.
func (c *httpClient) callPaged(ctx context.Context, method string, params map[string]any, page func(json.RawMessage) error) error {
	start := 0
	for {
		params["start"] = start
		env, err := c.call(ctx, method, params)
		if err != nil {
			return err
		}
		if err := page(env.Result); err != nil {
			return err
		}
		if env.Next == nil {
			return nil
		}
		start = *env.Next
	}
}

// remoteCall is the telephony statistics wire shape.
type remoteCall struct {
	ID            string `json:"ID"`
	StartDate     string `json:"CALL_START_DATE"`
	UserID        string `json:"PORTAL_USER_ID"`
	PhoneNumber   string `json:"PHONE_NUMBER"`
	RecordFileURL string `json:"CALL_RECORD_URL"`
	EntityID      string `json:"CRM_ENTITY_ID"`
	EntityType    string `json:"CRM_ENTITY_TYPE"`
	CallType      string `json:"CALL_TYPE"`
}

func (c *httpClient) ListCalls(ctx context.Context, from time.Time) ([]model.RemoteCall, error) {
	params := map[string]any{
		"FILTER": map[string]any{
			">CALL_START_DATE": from.Format(time.RFC3339),
		},
		"SORT":  "CALL_START_DATE",
		"ORDER": "DESC",
	}

	var calls []model.RemoteCall
	err := c.callPaged(ctx, "voximplant.statistic.get", params, func(raw json.RawMessage) error {
		var page []remoteCall
		if err := json.Unmarshal(raw, &page); err != nil {
			return eris.Wrap(err, "portal: decoding call statistics")
		}
		for _, rc := range page {
			if rc.RecordFileURL == "" {
				continue
			}
			call, err := rc.toModel()
			if err != nil {
				return err
			}
			calls = append(calls, call)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return calls, nil
}

func (rc remoteCall) toModel() (model.RemoteCall, error) {
	date, err := time.Parse(time.RFC3339, rc.StartDate)
	if err != nil {
		return model.RemoteCall{}, eris.Wrapf(err, "portal: parsing start date of call %s", rc.ID)
	}

	call := model.RemoteCall{
		ID:           rc.ID,
		Date:         date,
		PhoneNumber:  rc.PhoneNumber,
		RecordingURL: rc.RecordFileURL,
		CallType:     model.CallTypeFromCode(rc.CallType),
	}
	if rc.UserID != "" {
		if call.UserID, err = strconv.Atoi(rc.UserID); err != nil {
			return model.RemoteCall{}, eris.Wrapf(err, "portal: parsing user id of call %s", rc.ID)
		}
	}
	if rc.EntityType != "" && rc.EntityID != "" {
		call.EntityType = model.CRMEntityType(rc.EntityType)
		if call.EntityID, err = strconv.Atoi(rc.EntityID); err != nil {
			return model.RemoteCall{}, eris.Wrapf(err, "portal: parsing entity id of call %s", rc.ID)
		}
	}
	return call, nil
}

// entityMethods maps entity types to their portal list methods.
var entityMethods = map[model.CRMEntityType]string{
	model.EntityLead:    "crm.lead.list",
	model.EntityDeal:    "crm.deal.list",
	model.EntityContact: "crm.contact.list",
	model.EntityCompany: "crm.company.list",
}

// remoteEntity covers the fields shared by all CRM object types. Deals
// and companies carry TITLE, leads and contacts NAME and LAST_NAME.
type remoteEntity struct {
	ID       string `json:"ID"`
	Title    string `json:"TITLE"`
	Name     string `json:"NAME"`
	LastName string `json:"LAST_NAME"`
}

func (c *httpClient) ListEntities(ctx context.Context, typ model.CRMEntityType, ids []int) ([]model.Entity, error) {
	method, ok := entityMethods[typ]
	if !ok {
		return nil, eris.New(fmt.Sprintf("portal: no list method for entity type %s", typ))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	params := map[string]any{
		"filter": map[string]any{"ID": ids},
		"select": []string{"ID", "TITLE", "NAME", "LAST_NAME"},
	}

	var entities []model.Entity
	err := c.callPaged(ctx, method, params, func(raw json.RawMessage) error {
		var page []remoteEntity
		if err := json.Unmarshal(raw, &page); err != nil {
			return eris.Wrapf(err, "portal: decoding %s response", method)
		}
		for _, re := range page {
			id, err := strconv.Atoi(re.ID)
			if err != nil {
				return eris.Wrapf(err, "portal: parsing id of %s %s", typ, re.ID)
			}
			entities = append(entities, model.Entity{
				Type:       typ,
				ExternalID: id,
				Title:      re.Title,
				Name:       re.Name,
				LastName:   re.LastName,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

type remoteUser struct {
	ID          string `json:"ID"`
	Name        string `json:"NAME"`
	LastName    string `json:"LAST_NAME"`
	Departments []int  `json:"UF_DEPARTMENT"`
}

func (c *httpClient) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := c.callPaged(ctx, "user.get", map[string]any{}, func(raw json.RawMessage) error {
		var page []remoteUser
		if err := json.Unmarshal(raw, &page); err != nil {
			return eris.Wrap(err, "portal: decoding user list")
		}
		for _, ru := range page {
			id, err := strconv.Atoi(ru.ID)
			if err != nil {
				return eris.Wrapf(err, "portal: parsing user id %s", ru.ID)
			}
			users = append(users, model.User{
				ID:          id,
				Name:        ru.Name,
				LastName:    ru.LastName,
				Departments: ru.Departments,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Download streams a recording to dest, creating parent directories as
// needed. Recording URLs are pre-signed and need no webhook prefix.
func (c *httpClient) Download(ctx context.Context, url, dest string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "portal: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "portal: building download request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "portal: downloading recording"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.New(fmt.Sprintf("portal: download returned status %d", resp.StatusCode))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "portal: creating directory for %s", dest)
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "portal: creating %s", dest)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(dest)
		return eris.Wrapf(err, "portal: writing %s", dest)
	}
	return nil
}
