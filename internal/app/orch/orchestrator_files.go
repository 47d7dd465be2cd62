package orch

import (
	"context"
	"errors"
	"strings"

	"github.com/dkeye/lanhub/internal/app"
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/domain"
	"github.com/dkeye/lanhub/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Upload stores the file and announces it to every session. Failures are
// reported to the uploader only.
func (o *Orchestrator) Upload(ctx context.Context, sid core.SessionID, name string, size int64, data []byte) {
	s, ok := o.Registry.Lookup(sid)
	if !ok {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		o.ReplyError(ctx, sid, "upload failed: empty file name")
		return
	}

	meta, err := o.Files.Put(name, size, data, string(sid), s.Username)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("name", name).Msg("upload rejected")
		o.ReplyError(ctx, sid, "upload failed: "+err.Error())
		return
	}
	o.Metrics.SetFileStore(o.Files.Stats())
	o.broadcast(o.Registry.All(), &protocol.FileAvailable{FileInfo: fileInfo(meta)})
}

// Download sends the file content to the requester alone.
func (o *Orchestrator) Download(ctx context.Context, sid core.SessionID, fileID string) {
	s, ok := o.Registry.Lookup(sid)
	if !ok {
		return
	}
	rec, err := o.Files.Get(domain.FileID(fileID))
	if errors.Is(err, app.ErrFileNotFound) {
		o.ReplyError(ctx, sid, "file not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("file_id", fileID).Msg("file lookup")
		o.ReplyError(ctx, sid, "download failed")
		return
	}

	fd := &protocol.FileData{
		FileID: string(rec.ID),
		Name:   rec.Name,
		Size:   rec.Size,
		Data:   rec.Data,
	}
	if err := o.reply(ctx, s.Conn, fd); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("file_id", fileID).Msg("file data not delivered")
	}
}

func fileInfo(m domain.FileMeta) protocol.FileInfo {
	return protocol.FileInfo{
		FileID:       string(m.ID),
		Name:         m.Name,
		Size:         m.Size,
		UploaderID:   m.UploaderID,
		UploaderName: m.UploaderName,
		UploadedAt:   m.UploadedAt,
	}
}
