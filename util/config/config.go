package config

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"text/template"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// TemplateData is what a config file is rendered with when ReadConfig is
// given no template data, so that a file can refer to the environment
// as {{.Env.NAME}}.
type TemplateData struct {
	Env      map[string]string
	Hostname string
}

func defaultTemplateData() TemplateData {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	hostname, _ := os.Hostname()
	return TemplateData{Env: env, Hostname: hostname}
}

// ReadConfig renders the file at path as a text/template, decodes it
// strictly into a Config and applies environment variables prefixed with
// envBase on top.
func ReadConfig[Config interface{}](
	path string, templateData interface{}, envBase string,
) (*Config, error) {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	configTemplate, err := template.New("config").Option("missingkey=zero").Parse(string(fileData))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse config template")
	}
	if templateData == nil {
		templateData = defaultTemplateData()
	}

	rendered := bytes.Buffer{}
	err = configTemplate.Execute(&rendered, templateData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render config template")
	}

	decoder := yaml.NewDecoder(&rendered)
	decoder.SetStrict(true)

	config := new(Config)
	err = decoder.Decode(config)
	// An empty file leaves everything to defaults and the environment.
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to unmarshal config file")
	}

	err = envconfig.Process(envBase, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to process environment variables")
	}

	return config, nil
}

func HandleConfigJson(config interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		encodedConfig, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(err.Error()))
			return
		}
		w.Header().Add("Content-Type", "application/json")
		w.Write(encodedConfig)
	}
}

func HandleConfigYaml(config interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		encodedConfig, err := yaml.Marshal(config)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(err.Error()))
			return
		}
		w.Header().Add("Content-Type", "application/x-yaml")
		w.Write(encodedConfig)
	}
}
