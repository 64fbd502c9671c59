package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"smartchef/internal/config"
)

const (
	identityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	secureTokenURL     = "https://securetoken.googleapis.com/v1"
)

// FirebaseAuth signs users in through the Firebase Auth REST API.
type FirebaseAuth struct {
	apiKey     string
	toolkitURL string
	tokenURL   string
	httpClient *http.Client
	now        func() time.Time
}

// NewFirebaseAuth creates a client for the configured project, honoring the
// auth emulator. It returns nil when only the demo configuration is present.
func NewFirebaseAuth(cfg *config.Config) *FirebaseAuth {
	fb := cfg.Firebase
	if fb.IsDemo() && fb.AuthEmulatorHost == "" {
		return nil
	}

	toolkit, token := identityToolkitURL, secureTokenURL
	if fb.AuthEmulatorHost != "" {
		base := "http://" + strings.TrimSuffix(fb.AuthEmulatorHost, "/")
		toolkit = base + "/identitytoolkit.googleapis.com/v1"
		token = base + "/securetoken.googleapis.com/v1"
	}

	return newFirebaseAuth(fb.APIKey, toolkit, token, &http.Client{Timeout: 15 * time.Second})
}

func newFirebaseAuth(apiKey, toolkitURL, tokenURL string, httpClient *http.Client) *FirebaseAuth {
	return &FirebaseAuth{
		apiKey:     apiKey,
		toolkitURL: toolkitURL,
		tokenURL:   tokenURL,
		httpClient: httpClient,
		now:        time.Now,
	}
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInAnonymously creates a new anonymous user.
func (f *FirebaseAuth) SignInAnonymously(ctx context.Context) (Credentials, error) {
	var resp signInResponse
	body := map[string]interface{}{"returnSecureToken": true}
	if err := f.postJSON(ctx, f.toolkitURL+"/accounts:signUp", body, &resp); err != nil {
		return Credentials{}, fmt.Errorf("anonymous sign-in failed: %w", err)
	}
	return f.credentials(resp.IDToken, resp.RefreshToken, resp.ExpiresIn, resp.LocalID, ProviderAnonymous)
}

// SignInWithCustomToken exchanges a custom token for an ID token.
func (f *FirebaseAuth) SignInWithCustomToken(ctx context.Context, token string) (Credentials, error) {
	var resp signInResponse
	body := map[string]interface{}{"token": token, "returnSecureToken": true}
	if err := f.postJSON(ctx, f.toolkitURL+"/accounts:signInWithCustomToken", body, &resp); err != nil {
		return Credentials{}, fmt.Errorf("custom token sign-in failed: %w", err)
	}
	return f.credentials(resp.IDToken, resp.RefreshToken, resp.ExpiresIn, resp.LocalID, ProviderCustomToken)
}

// Refresh exchanges a refresh token for a new ID token.
func (f *FirebaseAuth) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint(f.tokenURL+"/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := f.do(req, &resp); err != nil {
		return Credentials{}, fmt.Errorf("token refresh failed: %w", err)
	}
	return f.credentials(resp.IDToken, resp.RefreshToken, resp.ExpiresIn, resp.UserID, "")
}

func (f *FirebaseAuth) endpoint(u string) string {
	return u + "?key=" + url.QueryEscape(f.apiKey)
}

func (f *FirebaseAuth) postJSON(ctx context.Context, u string, body interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint(u), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return f.do(req, out)
}

func (f *FirebaseAuth) do(req *http.Request, out interface{}) error {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("firebase auth error: status=%d message=%s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("firebase auth error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// credentials fills in the user id and expiry from the ID token when the
// response omits them.
func (f *FirebaseAuth) credentials(idToken, refreshToken, expiresIn, userID, provider string) (Credentials, error) {
	if idToken == "" {
		return Credentials{}, fmt.Errorf("no id token in response")
	}

	creds := Credentials{
		UserID:       userID,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		Provider:     provider,
	}

	if secs, err := strconv.Atoi(expiresIn); err == nil {
		creds.ExpiresAt = f.now().Add(time.Duration(secs) * time.Second)
	}

	sub, exp, err := tokenClaims(idToken)
	if err != nil {
		if creds.UserID == "" || creds.ExpiresAt.IsZero() {
			return Credentials{}, err
		}
		return creds, nil
	}
	if creds.UserID == "" {
		creds.UserID = sub
	}
	if creds.ExpiresAt.IsZero() {
		creds.ExpiresAt = exp
	}
	if creds.UserID == "" {
		return Credentials{}, fmt.Errorf("no user id in response")
	}
	return creds, nil
}
