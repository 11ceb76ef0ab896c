// Package fhevm implements reference encryption and decryption/verification services for
// confidential record amounts.
//
// Overview:
//   - Amounts are masked with a MiMC pad derived from a BLS12-377 Diffie-Hellman secret shared
//     with the key-management actor (KMS)
//   - Every ciphertext is bound to a (contract, caller) pair and carries a Groth16 proof that it
//     encrypts a 64-bit amount
//   - Decryption is performed by the KMS through the Gateway, which proves the clear value
//     against the public ciphertext and hands both to a submit callback exactly once
//
// Security Model:
//   - Uses MiMC over the BLS12-377 scalar field for masks, mask commitments and handles
//   - Uses BLS12-377 G1 for the KMS key and the per-ciphertext ephemeral key
//   - Zero-knowledge proofs are generated and verified using gnark (Groth16, BLS12-377)
//   - All randomness is generated using crypto/rand
//
// WARNING: This package is for research and educational purposes. The mask scheme is not an
// FHE scheme; it only models the encrypt-then-prove and decrypt-then-prove flow.
package fhevm
