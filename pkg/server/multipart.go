package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/ilingu/ilix-server/pkg/types"
)

// errNoFiles marks an upload body that parsed cleanly but carried no parts.
var errNoFiles = errors.New("multipart body contains no files")

// readMultipartFiles drains every part of a multipart upload in order,
// buffering each part's content in memory. Parts without a filename get a
// generated UUID name.
func readMultipartFiles(r *http.Request) ([]types.NamedFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	var files []types.NamedFile
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, err
		}

		filename := part.FileName()
		if filename == "" {
			filename = uuid.New().String()
		}
		files = append(files, types.NamedFile{Filename: filename, Data: data})
	}

	if len(files) == 0 {
		return nil, errNoFiles
	}
	return files, nil
}
