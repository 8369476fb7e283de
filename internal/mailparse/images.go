package mailparse

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/storage"
)

var inlineImageRe = regexp.MustCompile(`(?i)src="data:image/(png|jpe?g|gif|webp);base64,([^"]+)"`)

// ExtractInlineImages finds base64-embedded images in an HTML body, uploads
// each to blob storage, and rewrites the src attribute to the storage key.
// A failed upload is logged and that image is left embedded; one failing
// image never blocks the others or the message.
func ExtractInlineImages(html string, store storage.FileStorage, logger *slog.Logger) (string, []models.MessageFile) {
	var files []models.MessageFile

	rewritten := inlineImageRe.ReplaceAllStringFunc(html, func(match string) string {
		parts := inlineImageRe.FindStringSubmatch(match)
		format, encoded := parts[1], parts[2]

		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping undecodable inline image", slog.Any("error", err))
			}
			return match
		}

		filename := fmt.Sprintf("inline.%s", format)
		key, err := store.Save(filename, bytes.NewReader(data))
		if err != nil {
			if logger != nil {
				logger.Error("failed to upload inline image",
					slog.String("filename", filename),
					slog.Any("error", err))
			}
			return match
		}

		files = append(files, models.MessageFile{
			Filename:    filename,
			ContentType: "image/" + normalizeImageFormat(format),
			StorageKey:  key,
			SizeBytes:   int64(len(data)),
			IsInline:    true,
		})
		return fmt.Sprintf("src=%q", key)
	})

	return rewritten, files
}

func normalizeImageFormat(format string) string {
	format = strings.ToLower(format)
	if format == "jpg" {
		return "jpeg"
	}
	return format
}
