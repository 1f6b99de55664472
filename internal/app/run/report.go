package run

import (
	"encoding/json"
	"path/filepath"

	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/infra/fsx"
)

// WriteReport 把 report 原子写入 path（覆盖上一次）。
func WriteReport(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	dir, name := filepath.Split(path)
	return fsx.WriteFileAtomic(dir, name, append(b, '\n'))
}
