package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

var client = http.Client{Timeout: 30 * time.Second}

type errorResponse struct {
	Error string `json:"error"`
}

func get(url string, dataRecv any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decode(resp, dataRecv)
}

func post(url string, dataSend any, dataRecv any) error {
	data, err := json.Marshal(dataSend)
	if err != nil {
		return err
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decode(resp, dataRecv)
}

func decode(resp *http.Response, dataRecv any) error {
	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
			return errors.New(resp.Status)
		}
		return errors.New(er.Error)
	}

	return json.NewDecoder(resp.Body).Decode(dataRecv)
}
