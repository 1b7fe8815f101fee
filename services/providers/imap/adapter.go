package imap

import (
	"context"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

const (
	providerName    = "imap"
	defaultFolder   = "INBOX"
	defaultPageSize = 50
)

// Adapter pages through IMAP folders by ascending UID. Attachment bytes are
// part of every fetch.
type Adapter struct {
	cfg    *config.ImapConfig
	logger logger.Logger
	dial   dialFunc
}

func NewAdapter(cfg *config.ImapConfig, log logger.Logger) *Adapter {
	if cfg == nil {
		cfg = &config.ImapConfig{}
	}
	a := &Adapter{cfg: cfg, logger: log}
	a.dial = a.connect
	return a
}

func (a *Adapter) Provider() enum.EmailProvider {
	return enum.EmailGeneric
}

func (a *Adapter) AttachmentMode() enum.AttachmentMode {
	return enum.AttachmentModeEager
}

func (a *Adapter) ListMessages(ctx context.Context, creds *dto.Credentials, req dto.ListMessagesRequest) (*dto.MessagePage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ImapAdapter.ListMessages")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span, providerName)
	span.LogKV("cursor", req.Cursor, "pageSize", req.PageSize)

	folders := req.Folders
	if len(folders) == 0 {
		folders = []string{defaultFolder}
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	cur, err := decodeCursor(req.Cursor)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	start := 0
	if cur.Folder != "" {
		start = indexOf(folders, cur.Folder)
		if start < 0 {
			err = invalidCursor(errors.Errorf("cursor folder %q is not synced", cur.Folder))
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	page := &dto.MessagePage{}
	err = a.withSession(ctx, creds, func(s session) error {
		remaining := pageSize
		for i := start; i < len(folders); i++ {
			folder := folders[i]
			status, err := s.Select(folder, true)
			if err != nil {
				return transportError(err, "failed to select "+folder)
			}

			var lastUID uint32
			if i == start && cur.Folder == folder {
				if cur.UIDValidity != 0 && cur.UIDValidity != status.UidValidity {
					return invalidCursor(errors.Errorf("uidvalidity of %s changed from %d to %d", folder, cur.UIDValidity, status.UidValidity))
				}
				lastUID = cur.LastUID
			}

			uids, err := searchAfter(s, lastUID, req)
			if err != nil {
				return transportError(err, "failed to search "+folder)
			}
			page.TotalEstimate += len(uids)

			take := uids
			if len(take) > remaining {
				take = uids[:remaining]
			}
			messages, err := a.fetch(s, folder, status.UidValidity, take)
			if err != nil {
				return err
			}
			page.Messages = append(page.Messages, messages...)
			page.Listed += len(take)
			remaining -= len(take)

			if len(take) < len(uids) {
				page.NextCursor = cursor{Folder: folder, UIDValidity: status.UidValidity, LastUID: take[len(take)-1]}.encode()
				return nil
			}
			if remaining == 0 && i+1 < len(folders) {
				page.NextCursor = cursor{Folder: folders[i+1]}.encode()
				return nil
			}
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogKV("messages", len(page.Messages), "nextCursor", page.NextCursor)
	return page, nil
}

func (a *Adapter) FetchAttachmentBytes(ctx context.Context, creds *dto.Credentials, ref, attachmentRef string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ImapAdapter.FetchAttachmentBytes")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span, providerName)
	span.LogKV("messageRef", ref, "attachmentRef", attachmentRef)

	if ref == "" || attachmentRef == "" {
		return nil, mailsync_errors.ErrMissingAttachmentRef
	}
	folder, uidValidity, uid, err := parseMessageRef(ref)
	if err != nil {
		err = mailsync_errors.NewProviderError(providerName, mailsync_errors.KindNotFound, err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	var content []byte
	err = a.withSession(ctx, creds, func(s session) error {
		status, err := s.Select(folder, true)
		if err != nil {
			return transportError(err, "failed to select "+folder)
		}
		if status.UidValidity != uidValidity {
			return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindNotFound,
				errors.Errorf("uidvalidity of %s changed, message %d is gone", folder, uid))
		}

		messages, err := a.fetch(s, folder, uidValidity, []uint32{uid})
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindNotFound,
				errors.Errorf("message %d not found in %s", uid, folder))
		}
		for _, att := range messages[0].Attachments {
			if att.AttachmentRef == attachmentRef {
				content = att.Content
				return nil
			}
		}
		return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindNotFound,
			errors.Errorf("attachment %q not found on message %d", attachmentRef, uid))
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return content, nil
}

// searchAfter returns UIDs above lastUID in ascending order. Without a
// position the since filter applies instead.
func searchAfter(s session, lastUID uint32, req dto.ListMessagesRequest) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	if lastUID > 0 {
		criteria.Uid = new(imap.SeqSet)
		criteria.Uid.AddRange(lastUID+1, 0)
	} else if req.Since != nil && !req.Since.IsZero() {
		criteria.Since = *req.Since
	}

	uids, err := s.UidSearch(criteria)
	if err != nil {
		return nil, err
	}

	// "n:*" always matches the highest UID, even when it is below n
	filtered := uids[:0]
	for _, uid := range uids {
		if uid > lastUID {
			filtered = append(filtered, uid)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i] < filtered[j] })
	return filtered, nil
}

func (a *Adapter) fetch(s session, folder string, uidValidity uint32, uids []uint32) ([]*dto.RawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		imap.FetchInternalDate,
		section.FetchItem(),
	}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- s.UidFetch(seqSet, items, ch)
	}()

	byUID := make(map[uint32]*imap.Message, len(uids))
	for msg := range ch {
		if msg != nil {
			byUID[msg.Uid] = msg
		}
	}
	if err := <-done; err != nil {
		return nil, transportError(err, "failed to fetch from "+folder)
	}

	out := make([]*dto.RawMessage, 0, len(byUID))
	for _, uid := range uids {
		msg, ok := byUID[uid]
		if !ok {
			// expunged between search and fetch
			continue
		}
		raw, err := convertMessage(folder, uidValidity, msg, section)
		if err != nil {
			a.logger.Warnf("imap message %s: %v", messageRef(folder, uidValidity, uid), err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func indexOf(values []string, v string) int {
	for i, s := range values {
		if s == v {
			return i
		}
	}
	return -1
}
