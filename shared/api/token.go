package api

// TokenResponse is returned to non-cookie clients such as retro-watch.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}
