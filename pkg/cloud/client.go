// Package cloud is a client for the device cloud API used during setup:
// credentials, organizations and products, device registration and eSIM
// profiles.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

const (
	DefaultAPIURL = "https://api.particle.io"
	StagingAPIURL = "https://api.staging.particle.io"

	// TachyonPlatformID is the platform id of Tachyon products.
	TachyonPlatformID = 35

	oauthClient = "particle"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"error_description"`
	// MFAToken is set when the server asks for a one-time password.
	MFAToken string `json:"mfa_token"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, msg)
}

// Client calls the cloud API. A Client is immutable; logging in produces a
// new one.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for baseURL authenticated with token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// WithToken returns a copy of c using token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the access token, possibly empty.
func (c *Client) Token() string {
	return c.token
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var r io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case url.Values:
		r = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		r = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends a request and decodes a JSON response into out, which may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("api_request_failed", "method", method, "path", path, "error", err)
		return errors.Wrap(err, fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	slog.Debug("api_request", "method", method, "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// TokenInfo describes the current access token.
type TokenInfo struct {
	ExpiresAt *time.Time `json:"expires_at"`
	Client    string     `json:"client"`
}

// CurrentToken returns information about the client's token.
func (c *Client) CurrentToken(ctx context.Context) (*TokenInfo, error) {
	if c.token == "" {
		return nil, fmt.Errorf("no access token")
	}
	var info TokenInfo
	if err := c.do(ctx, http.MethodGet, "/v1/access_tokens/current", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// TokenResponse is a successful password or one-time password grant.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// PasswordGrant exchanges a username and password for a token. When the
// account has MFA enabled the returned error is an *APIError carrying an
// MFAToken.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"username":      {username},
		"password":      {password},
		"client_id":     {oauthClient},
		"client_secret": {oauthClient},
	}
	return c.grant(ctx, form)
}

// OTPGrant completes an MFA login.
func (c *Client) OTPGrant(ctx context.Context, mfaToken, otp string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"urn:custom:mfa-otp"},
		"mfa_token":     {mfaToken},
		"otp":           {otp},
		"client_id":     {oauthClient},
		"client_secret": {oauthClient},
	}
	return c.grant(ctx, form)
}

// grant posts to the token endpoint without the current bearer token.
func (c *Client) grant(ctx context.Context, form url.Values) (*TokenResponse, error) {
	var tok TokenResponse
	if err := c.WithToken("").do(ctx, http.MethodPost, "/oauth/token", nil, form, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Org is an organization the user belongs to.
type Org struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Orgs lists the user's organizations.
func (c *Client) Orgs(ctx context.Context) ([]Org, error) {
	var resp struct {
		Organizations []Org `json:"organizations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/orgs", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Organizations, nil
}

// Product is a fleet of devices.
type Product struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	PlatformID int    `json:"platform_id"`
}

func productsPath(orgSlug string) string {
	if orgSlug == "" {
		return "/v1/user/products"
	}
	return "/v1/orgs/" + url.PathEscape(orgSlug) + "/products"
}

// Products lists the products of an organization, or the user's own
// products when orgSlug is empty.
func (c *Client) Products(ctx context.Context, orgSlug string) ([]Product, error) {
	var resp struct {
		Products []Product `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, productsPath(orgSlug), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

// NewProduct describes a product to create.
type NewProduct struct {
	Name          string
	PlatformID    int
	OrgSlug       string
	LocationOptIn bool
}

// CreateProduct creates a product.
func (c *Client) CreateProduct(ctx context.Context, p NewProduct) (*Product, error) {
	body := map[string]any{
		"product": map[string]any{
			"name":            p.Name,
			"platform_id":     p.PlatformID,
			"location_opt_in": p.LocationOptIn,
		},
	}
	var resp struct {
		Product Product `json:"product"`
	}
	if err := c.do(ctx, http.MethodPost, productsPath(p.OrgSlug), nil, body, &resp); err != nil {
		return nil, err
	}
	slog.Info("product_created", "product_id", resp.Product.ID, "name", resp.Product.Name)
	return &resp.Product, nil
}

// Product fetches one product.
func (c *Client) Product(ctx context.Context, productID int) (*Product, error) {
	var resp struct {
		Product Product `json:"product"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/products/%d", productID), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

// AddDeviceResult reports what happened to each device id submitted.
type AddDeviceResult struct {
	UpdatedDeviceIDs   []string `json:"updatedDeviceIds"`
	ExistingDeviceIDs  []string `json:"existingDeviceIds"`
	InvalidDeviceIDs   []string `json:"invalidDeviceIds"`
	NonmemberDeviceIDs []string `json:"nonmemberDeviceIds"`
}

// AddDeviceToProduct adds a device to a product.
func (c *Client) AddDeviceToProduct(ctx context.Context, productID int, deviceID string) (*AddDeviceResult, error) {
	var res AddDeviceResult
	path := fmt.Sprintf("/v1/products/%d/devices", productID)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"id": deviceID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RegistrationCode returns the code the device presents on first connection.
func (c *Client) RegistrationCode(ctx context.Context, productID int, deviceID string) (string, error) {
	var resp struct {
		RegistrationCode string `json:"registration_code"`
	}
	path := fmt.Sprintf("/v1/products/%d/devices/%s/registration_code", productID, url.PathEscape(deviceID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.RegistrationCode, nil
}

// ESIMProfiles returns the eSIM profiles for the device as raw JSON.
func (c *Client) ESIMProfiles(ctx context.Context, productID int, deviceID, country string) (json.RawMessage, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/v1/products/%d/devices/%s/esim_profiles", productID, url.PathEscape(deviceID))
	query := url.Values{}
	if country != "" {
		query.Set("country", country)
	}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DeviceStatus returns "connected" or "disconnected" for a device.
func (c *Client) DeviceStatus(ctx context.Context, deviceID string) (string, error) {
	var resp struct {
		Online    bool `json:"online"`
		Connected bool `json:"connected"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/devices/"+url.PathEscape(deviceID), nil, nil, &resp); err != nil {
		return "", err
	}
	if resp.Online || resp.Connected {
		return "connected", nil
	}
	return "disconnected", nil
}
