// Package server contains shared payload types for the HTTP interfaces.
package server

import (
	"encoding/json"
	"go/types"
	"log"
	"net/http"
)

// BoolT is a strongly typed boolean for JSON bodies, {"bool": true}
type BoolT struct {
	Bool bool `json:"bool"`
}

// IntT is a strongly typed integer for JSON bodies, {"int": 1}
type IntT struct {
	Int int `json:"int"`
}

// FloatT is a strongly typed float for JSON bodies, {"f64": 3.14}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// StrT is a strongly typed string for JSON bodies, {"str": "foo"}
type StrT struct {
	Str string `json:"str"`
}

// HumanPayload is a struct that holds any one of the basic types and
// knows how to reply to an HTTP request with itself, wrapped in the
// matching typed JSON body.  T selects which field is populated.
type HumanPayload struct {
	// T holds the type of data actually contained in the payload
	T types.BasicKind

	Bool   bool
	Int    int
	Float  float64
	String string
}

// EncodeAndRespond writes the payload to w as JSON.
// logs and replies with http.Error on encode failure.
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	var err error
	switch hp.T {
	case types.Bool:
		err = json.NewEncoder(w).Encode(BoolT{Bool: hp.Bool})
	case types.Int:
		err = json.NewEncoder(w).Encode(IntT{Int: hp.Int})
	case types.Float64:
		err = json.NewEncoder(w).Encode(FloatT{F64: hp.Float})
	case types.String:
		err = json.NewEncoder(w).Encode(StrT{Str: hp.String})
	}
	if err != nil {
		log.Println("error encoding payload to json", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
