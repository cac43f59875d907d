package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
)

// SaveModel は値を gob でファイルに保存する。
// 非公開フィールドは保存されないので、モデルは公開フィールドだけからなる
// スナップショット（例: ensemble.ForestSnapshot）を渡すこと。
//
//	snap, _ := forest.Snapshot()
//	err := model.SaveModel(snap, "forest.gob")
func SaveModel(model interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	defer file.Close()

	return SaveModelToWriter(model, file)
}

// LoadModel は SaveModel で保存したファイルを model（ポインタ）に読み込む
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()

	return LoadModelFromReader(model, file)
}

// SaveModelToWriter は値を gob で w に書き出す
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader は r から gob で model（ポインタ）に読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
