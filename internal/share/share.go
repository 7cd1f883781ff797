// Package share builds and parses the invite links that carry a room across
// clients: a plain room id, a full base64 snapshot of the document, or a
// group id with the store credentials hidden in the URL fragment. Fragments
// never reach a server, so the credential form is safe to paste anywhere the
// recipient is trusted.
package share

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
)

const tokenFragmentPrefix = "token="

var ErrNoSnapshot = errors.New("link carries no snapshot")

// Credentials are the opaque bearer credentials for the versioned-file
// backend, as embedded in a share link.
type Credentials struct {
	Token  string `json:"token"`
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch,omitempty"`
}

// EncodeSnapshot packs a room document into the base64 form used by the
// ?data= link parameter.
func EncodeSnapshot(doc *models.Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSnapshot unpacks a ?data= parameter back into a room document.
func DecodeSnapshot(encoded string) (*models.Document, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &doc, nil
}

// EncodeCredentials packs credentials into the fragment value of a link,
// without the leading "#".
func EncodeCredentials(c Credentials) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return tokenFragmentPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeCredentials parses a URL fragment of the form "token=<base64 JSON>".
// The leading "#" may be present or already stripped.
func DecodeCredentials(fragment string) (Credentials, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	if !strings.HasPrefix(fragment, tokenFragmentPrefix) {
		return Credentials{}, errors.New("fragment carries no token")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(fragment, tokenFragmentPrefix))
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to decode credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credentials{}, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return c, nil
}

// JoinURL builds the plain invite link: base?room=<id>.
func JoinURL(base, roomID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SnapshotURL builds the serverless invite link: base?room=<id>&data=<snapshot>.
// The whole list travels inside the link; there is no remote behind it.
func SnapshotURL(base string, doc *models.Document) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	snap, err := EncodeSnapshot(doc)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("room", doc.RoomID)
	q.Set("data", snap)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GroupURL builds the credential-carrying invite link:
// base?group=<id>#token=<base64 JSON credentials>.
func GroupURL(base, groupID string, c Credentials) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	frag, err := EncodeCredentials(c)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("group", groupID)
	q.Del("data")
	u.RawQuery = q.Encode()
	u.Fragment = frag
	return u.String(), nil
}

// ParseJoinLink extracts whatever a pasted invite link carries: the room or
// group id, an embedded snapshot, and embedded credentials. Absent parts are
// zero values; a link with neither id nor snapshot is rejected.
type JoinLink struct {
	RoomID      string
	Snapshot    *models.Document
	Credentials *Credentials
}

func ParseJoinLink(raw string) (JoinLink, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return JoinLink{}, fmt.Errorf("invalid link: %w", err)
	}
	q := u.Query()

	link := JoinLink{RoomID: q.Get("room")}
	if link.RoomID == "" {
		link.RoomID = q.Get("group")
	}

	if data := q.Get("data"); data != "" {
		doc, err := DecodeSnapshot(data)
		if err != nil {
			return JoinLink{}, err
		}
		link.Snapshot = doc
		if link.RoomID == "" {
			link.RoomID = doc.RoomID
		}
	}
	if u.Fragment != "" {
		if c, err := DecodeCredentials(u.Fragment); err == nil {
			link.Credentials = &c
		}
	}

	if link.RoomID == "" && link.Snapshot == nil {
		return JoinLink{}, ErrNoSnapshot
	}
	return link, nil
}
