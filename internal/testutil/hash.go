package testutil

import (
	"crypto/sha256"
	"encoding/hex"

	"bumd-go/internal/model"
)

// SHA256Key returns the content key the default repository assigns to data.
func SHA256Key(data []byte) model.ContentKey {
	h := sha256.Sum256(data)
	return model.ContentKey(hex.EncodeToString(h[:]))
}
