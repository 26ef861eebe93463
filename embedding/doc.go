// Package embedding turns text into vectors through an external
// vectorization service.
//
// The service accepts
//
//	POST {baseURL}/embeddings/encode
//	{"model": "intfloat/multilingual-e5-base", "text": "..."}
//
// and answers
//
//	{"model": "...", "embedding": [0.1, ...], "dimension": 768}
//
// Client adds retries with exponential backoff, client-side rate limiting
// and bounded batch concurrency. E5 wraps any Embedder with the
// "passage: " and "query: " prefixes the e5 model family is trained with.
package embedding
