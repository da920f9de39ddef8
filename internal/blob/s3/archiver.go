package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = minPartSize

	chatArchiveKind  = "chat_exchanges"
	chatArchiveEvent = "archive.chat_exchanges"
)

// ChatArchiveStore is the part of the chat store the archiver needs.
type ChatArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ChatRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ChatArchiver implements domain.Archiver. Rows are deleted only after the
// uploaded object has been confirmed with a HEAD request.
type ChatArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	chats  ChatArchiveStore
	audit  domain.AuditStore
}

// NewChatArchiver creates a ChatArchiver. audit may be nil.
func NewChatArchiver(writer domain.BlobWriter, reader domain.BlobReader, chats ChatArchiveStore, audit domain.AuditStore) *ChatArchiver {
	return &ChatArchiver{
		writer: writer,
		reader: reader,
		chats:  chats,
		audit:  audit,
	}
}

// ArchiveChats uploads every exchange older than before as one JSONL object
// and then removes those rows. It returns the number of archived exchanges.
func (a *ChatArchiver) ArchiveChats(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.chats.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive chats query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive chats marshal: %w", err)
	}

	path := archivePath(chatArchiveKind, before)
	if int64(len(buf)) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive chats upload: %w", err)
	}

	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive chats verify: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive chats verify %s: %w", path, domain.ErrNotFound)
	}

	count := int64(len(records))

	var auditErr error
	if a.audit != nil {
		auditErr = a.audit.Log(ctx, chatArchiveEvent, map[string]any{
			"path":   path,
			"count":  count,
			"before": before.UTC().Format(time.RFC3339),
		})
		if auditErr != nil {
			auditErr = fmt.Errorf("s3blob: archive chats audit log: %w", auditErr)
		}
	}

	if _, err := a.chats.DeleteBefore(ctx, before); err != nil {
		return count, errors.Join(fmt.Errorf("s3blob: archive chats delete: %w", err), auditErr)
	}
	return count, auditErr
}

// archivePath builds the object key, partitioned by the cutoff's month:
//
//	archive/chat_exchanges/2026-07/20260721T030000Z.jsonl
func archivePath(kind string, before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01"), before.Format("20060102T150405Z"))
}

// marshalJSONL encodes records as newline-delimited compact JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ChatArchiver)(nil)
