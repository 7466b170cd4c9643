// Package badger 实现基于 BadgerDB 的存储引擎
//
//	cfg := engine.DefaultConfig("/data/messenger")
//	db, err := badger.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package badger
