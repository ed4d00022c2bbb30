package ports

import (
	"context"
	"errors"
)

// ErrBlobNotFound indica que la key no existe en el object storage.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore es el object storage externo: blobs con nombre, escritura completa.
type BlobStore interface {
	// Get devuelve el contenido de la key o ErrBlobNotFound si no existe.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put sobreescribe la key con data.
	Put(ctx context.Context, key string, data []byte) error
}
