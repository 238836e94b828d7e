package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

type config struct {
	Store       map[string]interface{} `json:"store"`
	Remote      map[string]interface{} `json:"remote"`
	Strategy    string                 `json:"strategy"`
	Compression string                 `json:"compression"`
}

// loadConfig reads and decodes the JSON config file.
// Numbers decode as json.Number,
// which is what the store factories expect for parameters like the lru size.
func loadConfig(filename string) (config, error) {
	var conf config
	f, err := os.Open(filename)
	if err != nil {
		return conf, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	err = dec.Decode(&conf)
	return conf, errors.Wrapf(err, "decoding config file %s", filename)
}
