package model

import jsoniter "github.com/json-iterator/go"

// json is the codec used for every KV value and on-disk job.json file in
// this module. json-iterator is API-compatible with encoding/json but avoids
// its reflection overhead on the hot reconcile path, where every tick
// encodes/decodes the full Members list and every active JobConfig/JobRecord.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes v the same way encoding/json would.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes data into v the same way encoding/json would.
func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
