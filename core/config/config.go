package config

import (
	_ "embed"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

type Configuration struct {
	Prompt         string `json:"prompt" validate:"required"`
	MaxLineLength  int    `json:"max_line_length" validate:"gt=0"`
	CommentPrefix  string `json:"comment_prefix" validate:"required"`
	NullDevice     string `json:"null_device" validate:"required"`
	OutputFileMode uint32 `json:"output_file_mode" validate:"lte=511"` // 0777
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// FileMode is the permission set used when output redirection creates a file.
func (c *Configuration) FileMode() os.FileMode {
	return os.FileMode(c.OutputFileMode).Perm()
}

// Default returns the built-in configuration.
func Default() *Configuration {
	out, err := Parse(defaultConfigData)
	if err != nil {
		panic(err)
	}
	return out
}
