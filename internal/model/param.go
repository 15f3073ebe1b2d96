package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Param is one named, typed value of a decoded event or call.
type Param struct {
	Name  string
	Type  string
	Value interface{}
}

// Column returns the flat output column name of the parameter.
func (p Param) Column() string {
	if p.Type == "" {
		return p.Name
	}
	return p.Name + "(" + p.Type + ")"
}

func (p Param) String() string {
	return FormatValue(p.Value)
}

// MarshalJSON renders the value as a string so big integers survive JSON consumers.
func (p Param) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name  string `json:"name"`
		Type  string `json:"type"`
		Value string `json:"value"`
	}{p.Name, p.Type, p.String()})
}

// Params keeps parameters in declaration order.
type Params []Param

// Get returns the parameter with the given name.
func (ps Params) Get(name string) (Param, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// BigInt returns an integer parameter as a fresh *big.Int.
func (ps Params) BigInt(name string) (*big.Int, bool) {
	p, ok := ps.Get(name)
	if !ok {
		return nil, false
	}
	switch v := p.Value.(type) {
	case *big.Int:
		if v == nil {
			return nil, false
		}
		return new(big.Int).Set(v), true
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		return n, ok
	default:
		return nil, false
	}
}

// Address returns an address parameter in lowercase 0x form. Empty strings are valid
// and mean "no address".
func (ps Params) Address(name string) (string, bool) {
	p, ok := ps.Get(name)
	if !ok {
		return "", false
	}
	switch v := p.Value.(type) {
	case common.Address:
		return NormalizeAddress(v.Hex()), true
	case string:
		return NormalizeAddress(v), true
	default:
		return "", false
	}
}

// NormalizeAddress is the single canonical address form used across the pipeline.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// FormatValue renders a decoded ABI value for display.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case *big.Int:
		if v == nil {
			return ""
		}
		return v.String()
	case common.Address:
		return NormalizeAddress(v.Hex())
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		buf := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(buf), rv)
		return hexutil.Encode(buf)
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items = append(items, FormatValue(rv.Index(i).Interface()))
		}
		return "[" + strings.Join(items, " ") + "]"
	}
	return fmt.Sprintf("%v", value)
}
