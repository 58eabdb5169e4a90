// Package numverify provides a phone number lookup tool backed by the NUMVERIFY API.
package numverify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolbind", "numverify")

const (
	// ToolName is the name of the phone lookup tool
	ToolName = "lookupPhoneNumber"
	// DefaultBaseURL is the NUMVERIFY API endpoint
	DefaultBaseURL = "http://apilayer.net/api"

	maxResponseSize = 1 << 20
)

// Config of the tool.
type Config struct {
	// APIKey is the NUMVERIFY access key.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// BaseURL overrides DefaultBaseURL.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// LookupRequest represents the tool input.
type LookupRequest struct {
	PhoneNumber string `json:"phoneNumber" yaml:"phoneNumber" validate:"required,max=64" jsonschema:"title=Phone Number,description=The phone number to look up (can include country code)"`
}

// PhoneInfo represents the tool output.
type PhoneInfo struct {
	Valid               bool   `json:"valid" yaml:"valid"`
	Number              string `json:"number" yaml:"number"`
	LocalFormat         string `json:"localFormat" yaml:"localFormat"`
	InternationalFormat string `json:"internationalFormat" yaml:"internationalFormat"`
	CountryPrefix       string `json:"countryPrefix" yaml:"countryPrefix"`
	CountryCode         string `json:"countryCode" yaml:"countryCode"`
	CountryName         string `json:"countryName" yaml:"countryName"`
	Location            string `json:"location" yaml:"location"`
	Carrier             string `json:"carrier" yaml:"carrier"`
	LineType            string `json:"lineType" yaml:"lineType"`
}

// apiResponse is the NUMVERIFY validate response
type apiResponse struct {
	Valid               bool            `json:"valid"`
	Number              string          `json:"number"`
	LocalFormat         string          `json:"local_format"`
	InternationalFormat string          `json:"international_format"`
	CountryPrefix       string          `json:"country_prefix"`
	CountryCode         string          `json:"country_code"`
	CountryName         string          `json:"country_name"`
	Location            string          `json:"location"`
	Carrier             string          `json:"carrier"`
	LineType            string          `json:"line_type"`
	// Error is an object, some deployments return a plain string
	Error               json.RawMessage `json:"error,omitempty"`
}

type apiError struct {
	Code int    `json:"code"`
	Type string `json:"type"`
	Info string `json:"info"`
}

// apiErrorOf decodes the error field, it returns nil if there is no error.
func apiErrorOf(raw json.RawMessage) *apiError {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return nil
	}
	var info string
	if json.Unmarshal(raw, &info) == nil {
		return &apiError{Info: info}
	}
	e := new(apiError)
	if json.Unmarshal(raw, e) != nil {
		return &apiError{Info: string(raw)}
	}
	return e
}

// Tool looks up phone numbers
type Tool struct {
	*tools.Function[LookupRequest, PhoneInfo]

	cfg        Config
	httpClient *http.Client
}

// New returns the tool with the given configuration.
// A missing API key is reported when the tool is called.
func New(cfg Config) (*Tool, error) {
	t := &Tool{
		cfg:        cfg,
		httpClient: http.DefaultClient,
	}

	f, err := tools.New(ToolName,
		"Look up phone number information including validity, country, carrier, and line type using NUMVERIFY API",
		t.Lookup)
	if err != nil {
		return nil, err
	}
	t.Function = f
	return t, nil
}

func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.cfg.BaseURL = baseURL
	return t
}

func (t *Tool) WithHTTPClient(client *http.Client) *Tool {
	t.httpClient = client
	return t
}

// Lookup calls the NUMVERIFY validate endpoint.
func (t *Tool) Lookup(ctx context.Context, req *LookupRequest) (*PhoneInfo, error) {
	if t.cfg.APIKey == "" {
		return nil, tools.NewConfigurationError("NUMVERIFY API key is not configured")
	}
	number := strings.TrimSpace(req.PhoneNumber)
	if number == "" {
		return nil, tools.NewValidationError("phone number is empty")
	}

	q := url.Values{}
	q.Set("access_key", t.cfg.APIKey)
	q.Set("number", number)
	u := strings.TrimSuffix(values.StringsCoalesce(t.cfg.BaseURL, DefaultBaseURL), "/") + "/validate?" + q.Encode()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, tools.NewConfigurationError("invalid NUMVERIFY base URL: %s", t.cfg.BaseURL)
	}
	hreq.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(hreq)
	if err != nil {
		// the URL carries the access key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, tools.NewExecutionError("failed to call NUMVERIFY: %s", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, tools.NewExecutionError("failed to read NUMVERIFY response: %s", err.Error())
	}

	var data apiResponse
	jerr := json.Unmarshal(body, &data)
	if apiErr := apiErrorOf(data.Error); jerr == nil && apiErr != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "api_error",
			"code", apiErr.Code,
			"type", apiErr.Type,
		)
		return nil, tools.NewExecutionError("API Error: %s", values.StringsCoalesce(apiErr.Info, "Unknown error"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, tools.NewExecutionError("NUMVERIFY returned status %d", resp.StatusCode)
	}
	if jerr != nil {
		return nil, tools.NewExecutionError("invalid NUMVERIFY response: %s", jerr.Error())
	}

	return &PhoneInfo{
		Valid:               data.Valid,
		Number:              data.Number,
		LocalFormat:         data.LocalFormat,
		InternationalFormat: data.InternationalFormat,
		CountryPrefix:       data.CountryPrefix,
		CountryCode:         data.CountryCode,
		CountryName:         data.CountryName,
		Location:            data.Location,
		Carrier:             data.Carrier,
		LineType:            data.LineType,
	}, nil
}
