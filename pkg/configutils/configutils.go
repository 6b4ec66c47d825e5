package configutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// ImportKey is the config key listing files to import before the file itself.
var ImportKey = "imports"

// ResolveAndMergeFile reads filePath from the OS filesystem, resolves its
// imports and merges everything into v.
func ResolveAndMergeFile(v *viper.Viper, filePath string) error {
	return ResolveAndMergeFileFs(afero.NewOsFs(), v, filePath)
}

// ResolveAndMergeFileFs is ResolveAndMergeFile over an arbitrary afero.Fs.
// Imports are merged depth first so that the importing file always wins.
func ResolveAndMergeFileFs(fs afero.Fs, v *viper.Viper, filePath string) error {
	if err := mustExist(fs, filePath); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return errors.New("configuration file has no extension")
	}
	if !isSupportedExt(ext[1:]) {
		return fmt.Errorf("unsupported configuration file extension: %s", ext)
	}

	v.SetFs(fs)
	v.SetConfigType(ext[1:])
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	if err := resolveAllImports(fs, v); err != nil {
		return fmt.Errorf("could not resolve configuration imports: %w", err)
	}
	return nil
}

func isSupportedExt(ext string) bool {
	for _, e := range viper.SupportedExts {
		if ext == e {
			return true
		}
	}
	return false
}

func mustExist(fs afero.Fs, path string) error {
	ok, err := afero.Exists(fs, path)
	if err != nil {
		return err
	}
	if !ok {
		return &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}
	return nil
}

// resolveImports walks the import graph depth first. visited is filled in
// pre-order to break cycles, configs in post-order so children merge first.
func resolveImports(fs afero.Fs, v *viper.Viper, configs *[]string, visited map[string]struct{}) error {
	for _, i := range v.GetStringSlice(ImportKey) {
		if i == "" {
			continue
		}

		path := filepath.Clean(i)
		if !filepath.IsAbs(i) {
			path = filepath.Join(filepath.Dir(v.ConfigFileUsed()), i)
		}

		if err := mustExist(fs, path); err != nil {
			return err
		}
		if _, ok := visited[path]; ok {
			continue
		}
		visited[path] = struct{}{}

		child := viper.New()
		child.SetFs(fs)
		child.SetConfigFile(path)
		if err := child.ReadInConfig(); err != nil {
			return err
		}
		if err := resolveImports(fs, child, configs, visited); err != nil {
			return err
		}
		*configs = append(*configs, path)
	}
	return nil
}

func resolveAllImports(fs afero.Fs, v *viper.Viper) error {
	var configs []string
	if err := resolveImports(fs, v, &configs, map[string]struct{}{}); err != nil {
		return err
	}

	configs = append(configs, v.ConfigFileUsed())
	for _, path := range configs {
		if err := mergeConfigFile(fs, v, path); err != nil {
			return fmt.Errorf("merging config %s: %w", path, err)
		}
	}
	return nil
}

func mergeConfigFile(fs afero.Fs, v *viper.Viper, filePath string) error {
	r, err := fs.Open(filePath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return v.MergeConfig(r)
}

// BindEnvsRecursive binds every mapstructure-tagged field of iface (a pointer
// to struct) to its dotted viper key so that AutomaticEnv values reach
// Unmarshal. Nil struct pointers are allocated on the way down.
func BindEnvsRecursive(v *viper.Viper, iface interface{}, path string) error {
	val := reflect.ValueOf(iface).Elem()
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" || strings.HasPrefix(tag, ",") {
			continue
		}

		fullPath := tag
		if path != "" {
			fullPath = path + "." + tag
		}

		field := val.Field(i)
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			field = field.Elem()
		}

		if field.Kind() == reflect.Struct {
			if err := BindEnvsRecursive(v, field.Addr().Interface(), fullPath); err != nil {
				return err
			}
		}

		if err := v.BindEnv(fullPath); err != nil {
			return fmt.Errorf("failed to bind environment variable: %w", err)
		}
	}
	return nil
}
