package storage

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"nestnote/local-app/internal/model"
)

// FileExport writes the children of rootID to filename as a JSON tree
// ("json") or indented text ("txt").
func FileExport(o *model.Outline, rootID, filename, format string) error {
	root, ok := o.Get(rootID)
	if !ok {
		return errors.Wrapf(ErrNotFound, "node %q", rootID)
	}
	trees := make([]model.NodeTransferData, 0, len(root.Children))
	for _, c := range root.Children {
		if t, ok := o.Transfer(c); ok {
			trees = append(trees, t)
		}
	}

	var data []byte
	var err error
	switch format {
	case "json":
		data, err = json.MarshalIndent(trees, "", "  ")
	case "txt":
		data = []byte(model.FormatIndented(trees))
	default:
		return errors.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return errors.Wrap(err, "failed to marshal outline")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write file")
	}
	return nil
}

// FileImport reads subtrees written by FileExport, or any indented text.
func FileImport(filename, format string) ([]model.NodeTransferData, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}

	switch format {
	case "json":
		var trees []model.NodeTransferData
		if err := json.Unmarshal(data, &trees); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal data")
		}
		return trees, nil
	case "txt":
		return model.ParseIndented(string(data)), nil
	default:
		return nil, errors.Errorf("unsupported format: %s", format)
	}
}
