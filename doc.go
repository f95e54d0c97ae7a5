// Package dedup embeds the duplicate-record detection service.
//
// A Client loads the registry document (schemas and indexes), opens every
// index on the chosen storage driver and answers duplicate queries against
// one index or a union group of indexes:
//
//	c, _ := dedup.New(ctx,
//	    dedup.WithWorkDir("/srv/dedup"),
//	    dedup.WithConfigFile("dedup.xml"),
//	    dedup.WithBleve(),
//	)
//	defer c.Close()
//
//	resp, _ := c.Duplicates(ctx, url.Values{
//	    "database": {"lilacs//@//medline"},
//	    "schema":   {"lilacs_Sas"},
//	    "titulo_artigo": {"Cancer treatment"},
//	})
package dedup
