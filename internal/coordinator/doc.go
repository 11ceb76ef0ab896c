// Package coordinator implements the confidential-record coordinator.
//
// Overview:
//   - Owns the in-memory projection of ledger records and the append-only history log
//   - Sequences the create workflow: encrypt locally, submit ciphertext and proof, reconcile
//   - Sequences the decrypt workflow: authoritative verified check, decryption with proof
//     submission through a single continuation, reconcile
//   - Deduplicates concurrent decrypt requests per record identifier
//   - Classifies collaborator failures (user rejection, network, crypto, verification races)
//
// The ledger is the single source of truth. The cache is only ever replaced by a reconcile
// and is otherwise read through snapshots.
//
// Collaborators are consumed through the LedgerClient, Encryptor, Decryptor and Reporter
// interfaces; reference implementations live in internal/ledger and internal/fhevm.
package coordinator
