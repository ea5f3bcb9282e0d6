// Package fingerprint computes deterministic cache keys for pipeline
// stages. A fingerprint covers the stage definition, the content of its
// declared inputs and the fingerprint of any upstream stage whose output
// it consumes. It never covers wall-clock time or run identity, so two
// runs with identical inputs produce identical keys across runs and
// branches.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/slipwayci/slipway/pkg/domain"
)

// Stage computes the fingerprint digest for a stage. Declared inputs are
// resolved relative to baseDir; a directory input contributes every
// regular file under it in sorted path order. upstreamKey is the cache
// key of the stage whose output this stage consumes, or empty.
func Stage(stage domain.Stage, baseDir, upstreamKey string) (string, error) {
	h := sha256.New()

	writeField(h, "kind", string(stage.Kind))
	writeField(h, "name", stage.Name)
	for _, arg := range stage.Command {
		writeField(h, "arg", arg)
	}
	for _, input := range stage.Inputs {
		writeField(h, "input", input)
	}
	writeField(h, "upstream", upstreamKey)

	files, err := resolveInputs(baseDir, stage.Inputs)
	if err != nil {
		return "", err
	}

	for _, file := range files {
		digest, err := hashFile(file.abs)
		if err != nil {
			return "", fmt.Errorf("failed to hash input %s: %w", file.rel, err)
		}
		writeField(h, file.rel, digest)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Key builds the cache key for a stage digest. The service ID is part of
// the key so entries of distinct services cannot collide.
func Key(serviceID, stageName, digest string) string {
	return fmt.Sprintf("%s/%s@%s", serviceID, stageName, digest)
}

type inputFile struct {
	rel string
	abs string
}

// resolveInputs expands declared inputs into a sorted list of regular
// files. A missing input is an error: a stage declaring an input that
// does not exist cannot be fingerprinted.
func resolveInputs(baseDir string, inputs []string) ([]inputFile, error) {
	var files []inputFile

	for _, input := range inputs {
		abs := filepath.Join(baseDir, input)

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat input %s: %w", input, err)
		}

		if !info.IsDir() {
			files = append(files, inputFile{rel: filepath.ToSlash(input), abs: abs})
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(baseDir, path)
			if err != nil {
				return err
			}
			files = append(files, inputFile{rel: filepath.ToSlash(rel), abs: path})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk input %s: %w", input, err)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeField writes a length-prefixed field so adjacent values cannot
// run together and alias a different input set.
func writeField(h hash.Hash, name, value string) {
	fmt.Fprintf(h, "%d:%s=%d:%s;", len(name), name, len(value), value)
}
