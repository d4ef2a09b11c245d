package crimegen

import (
	"fmt"

	"github.com/google/uuid"
)

// Namespace roots every generated identifier. Never change it: record ids
// are derived from it.
var Namespace = uuid.MustParse("6f1c9a52-3e0b-5d7a-9c44-2b8e1f0d7a31")

func v5(ns uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(ns, []byte(name))
}

// BatchID identifies one generator run. The start time keeps reruns with the
// same seed additive instead of colliding.
func BatchID(seed int64, startedAtNanos int64) uuid.UUID {
	return v5(Namespace, fmt.Sprintf("batch:%d:%d", seed, startedAtNanos))
}

func RecordID(batch uuid.UUID, districtID string, index int) uuid.UUID {
	return v5(batch, fmt.Sprintf("record:%s:%d", districtID, index))
}

func SuspectID(batch uuid.UUID, index int) uuid.UUID {
	return v5(batch, fmt.Sprintf("suspect:%d", index))
}
