package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// Template returns the starter project written by `fripack init`.
func Template() map[string]Target {
	return map[string]Target{
		"base": {
			Version:      ptr("1.0.0"),
			FridaVersion: ptr("17.5.1"),
			Mode:         ptr("embedjs"),
			Entry:        ptr("main.js"),
			XZ:           ptr(false),
		},
		"example-android-so": {
			Inherit:              ptr("base"),
			Type:                 ptr(TypeAndroidSO),
			Platform:             ptr("arm64-v8a"),
			OverridePrebuildFile: ptr("./libfripack-inject.so"),
		},
		"example-xposed": {
			Type:        ptr(TypeXposed),
			Platform:    ptr("arm64-v8a"),
			Version:     ptr("1.0.0"),
			PackageName: ptr("com.example.myxposedmodule"),
			Keystore:    ptr("~/.android/debug.keystore"),
			Name:        ptr("My Xposed Module"),
			Icon:        ptr("res/icon.png"),
		},
	}
}

// WriteTemplate writes Template to path, or to path/fripack.json when path is
// a directory. It never overwrites and returns the file written.
func WriteTemplate(path string) (string, error) {
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		path = filepath.Join(path, FileNames[0])
	}
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%w: %s", ErrExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return path, err
	}

	data, err := json.MarshalIndent(Template(), "", "  ")
	if err != nil {
		return path, err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return path, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return path, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return path, err
	}
	return path, f.Close()
}

func ptr[T any](v T) *T {
	return &v
}
