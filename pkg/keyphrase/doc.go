/*
Package keyphrase implements the key-phrase identity scheme: generation from
a dictionary, validation, and the salted multi-round hash stored in place of
the plaintext.

A key phrase is 20 dictionary words joined by '-'. It is simultaneously the
pool identifier, the authentication credential and the seed of the blob
encryption key; the multi-round salted hash is what makes this dual use
tolerable, since the stored identifier cannot be reversed into the
credential. The round count and salt are process secrets: changing either
invalidates every existing pool.
*/
package keyphrase
