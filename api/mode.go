package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/quillbooks/quillbooks/identity"
)

const (
	livemodeCookieName  = "qb_livemode"
	partitionCookieName = "qb_partition"
	modeCookieLifetime  = 365 * 24 * time.Hour
)

// ModeContext is the caller's live/test partition selection plus the
// readonly flag. Livemode and the active partition come exclusively from
// the incoming cookies; readonly is derived from the identity (demo
// sessions) and is never client-settable.
type ModeContext struct {
	Livemode          bool
	ActivePartitionID string
	Readonly          bool
}

// OptionalString distinguishes an absent JSON field from an explicit null.
// Absent means "leave unchanged", null means "clear", a string means
// "overwrite".
type OptionalString struct {
	Present bool
	Value   *string
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Present = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// readModeContext builds the mode from the request cookies. Defaults to
// test mode when no cookie has ever been set.
func (a *API) readModeContext(r *http.Request, ident *identity.Identity) ModeContext {
	mode := ModeContext{}
	if ck, err := r.Cookie(livemodeCookieName); err == nil {
		mode.Livemode = ck.Value == "true"
	}
	if ck, err := r.Cookie(partitionCookieName); err == nil {
		mode.ActivePartitionID = ck.Value
	}
	if ident != nil && ident.Demo {
		mode.Readonly = true
	}
	return mode
}

// writeModeCookies persists the mode selection. Both cookies go out in the
// same response, so the pair updates atomically from the caller's
// perspective. The partition cookie follows three-way semantics: absent
// input leaves it untouched, null deletes it, a string overwrites it.
func (a *API) writeModeCookies(w http.ResponseWriter, r *http.Request, livemode bool, partition OptionalString) {
	secure := requestIsSecure(r)
	domain := cookieDomainForHost(r.Host, a.canonicalHost)

	value := "false"
	if livemode {
		value = "true"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     livemodeCookieName,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(modeCookieLifetime),
	})

	if !partition.Present {
		return
	}
	if partition.Value == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     partitionCookieName,
			Value:    "",
			Path:     "/",
			Domain:   domain,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
		})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     partitionCookieName,
		Value:    *partition.Value,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(modeCookieLifetime),
	})
}
