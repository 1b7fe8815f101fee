package imap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
)

// cursor is the position inside the folder being walked. UIDs are only
// comparable while the folder's UIDVALIDITY is unchanged.
type cursor struct {
	Folder      string `json:"folder"`
	UIDValidity uint32 `json:"uidValidity"`
	LastUID     uint32 `json:"lastUid"`
}

func (c cursor) encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(value string) (cursor, error) {
	var c cursor
	if value == "" {
		return c, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return c, invalidCursor(errors.Wrap(err, "cursor is not base64url"))
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, invalidCursor(errors.Wrap(err, "cursor is not json"))
	}
	if c.Folder == "" {
		return c, invalidCursor(errors.New("cursor has no folder"))
	}
	return c, nil
}

func invalidCursor(err error) error {
	return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindInvalidCursor, err)
}

// messageRef identifies one message as folder:uidValidity:uid. Folder names
// may contain colons, so the numeric parts are split from the right.
func messageRef(folder string, uidValidity, uid uint32) string {
	return fmt.Sprintf("%s:%d:%d", folder, uidValidity, uid)
}

func parseMessageRef(ref string) (folder string, uidValidity, uid uint32, err error) {
	last := strings.LastIndex(ref, ":")
	if last <= 0 {
		return "", 0, 0, errors.Errorf("malformed message ref %q", ref)
	}
	mid := strings.LastIndex(ref[:last], ":")
	if mid <= 0 {
		return "", 0, 0, errors.Errorf("malformed message ref %q", ref)
	}

	v, err := strconv.ParseUint(ref[mid+1:last], 10, 32)
	if err != nil {
		return "", 0, 0, errors.Wrapf(err, "malformed uidvalidity in %q", ref)
	}
	u, err := strconv.ParseUint(ref[last+1:], 10, 32)
	if err != nil || u == 0 {
		return "", 0, 0, errors.Errorf("malformed uid in %q", ref)
	}
	return ref[:mid], uint32(v), uint32(u), nil
}
